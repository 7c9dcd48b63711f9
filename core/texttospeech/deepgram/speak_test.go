package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/levial/levial/core/audio"
)

func newSpeakServer(t *testing.T, reply func(conn *websocket.Conn, text string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("encoding") != "linear16" || r.URL.Query().Get("container") != "none" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var text string
		for {
			var msg struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			switch msg.Type {
			case "Speak":
				text += msg.Text
			case "Flush":
				reply(conn, text)
			case "Close":
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSynthesizeStoresReceivedAudio(t *testing.T) {
	server := newSpeakServer(t, func(conn *websocket.Conn, text string) {
		samples := make([]float32, 10*len(text))
		for i := range samples {
			samples[i] = 0.25
		}
		data := audio.EncodeLinear16(samples)
		_ = conn.WriteMessage(websocket.BinaryMessage, data[:len(data)/2])
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Warning","description":"slow"}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, data[len(data)/2:])
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
	})
	defer server.Close()

	outDir := filepath.Join(t.TempDir(), "artifacts")
	client := NewTextToSpeechClient("secret", WithURL(wsURL(server)), WithSampleRate(16000))
	path, err := client.Synthesize(context.Background(), "hello", outDir)
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}

	samples, info, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("expected a readable wav, got %v", err)
	}
	if info.SampleRate != 16000 || len(samples) != 50 {
		t.Fatalf("unexpected audio: rate %d, %d samples", info.SampleRate, len(samples))
	}
}

func TestSynthesizeFailsWhenServerClosesEarly(t *testing.T) {
	server := newSpeakServer(t, func(conn *websocket.Conn, _ string) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer server.Close()

	client := NewTextToSpeechClient("secret", WithURL(wsURL(server)))
	_, err := client.Synthesize(context.Background(), "hello", t.TempDir())
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestSynthesizeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := newSpeakServer(t, func(*websocket.Conn, string) { cancel() })
	defer server.Close()

	client := NewTextToSpeechClient("secret", WithURL(wsURL(server)))
	_, err := client.Synthesize(ctx, "hello", t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
