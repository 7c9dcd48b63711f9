package audio

import (
	"testing"
	"time"
)

func TestPreRollBufferEvictsOldestWhenFull(t *testing.T) {
	b := NewPreRollBuffer(3)
	for seq := range uint64(4) {
		b.Push(Chunk{Seq: seq})
	}

	snapshot := b.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(snapshot))
	}
	for i, want := range []uint64{1, 2, 3} {
		if snapshot[i].Seq != want {
			t.Fatalf("expected chunk %d to have seq %d, got %d", i, want, snapshot[i].Seq)
		}
	}
}

func TestPreRollBufferNeverExceedsCapacity(t *testing.T) {
	b := NewPreRollBuffer(5)
	for seq := range uint64(100) {
		b.Push(Chunk{Seq: seq})
		if b.Len() > b.Cap() {
			t.Fatalf("expected at most %d chunks, got %d after push %d", b.Cap(), b.Len(), seq)
		}
	}
}

func TestPreRollBufferSnapshotIsACopy(t *testing.T) {
	b := NewPreRollBuffer(2)
	b.Push(Chunk{Seq: 1})
	snapshot := b.Snapshot()

	b.Push(Chunk{Seq: 2})
	b.Push(Chunk{Seq: 3})

	if len(snapshot) != 1 || snapshot[0].Seq != 1 {
		t.Fatalf("expected snapshot to keep its original contents, got %+v", snapshot)
	}
}

func TestPreRollBufferDrainEmptiesBuffer(t *testing.T) {
	b := NewPreRollBuffer(4)
	b.Push(Chunk{Seq: 7})
	b.Push(Chunk{Seq: 8})

	drained := b.Drain()
	if len(drained) != 2 || drained[0].Seq != 7 || drained[1].Seq != 8 {
		t.Fatalf("expected drained chunks 7 and 8, got %+v", drained)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after drain, got %d chunks", b.Len())
	}
}

func TestNewPreRollBufferForDurationRoundsUp(t *testing.T) {
	b := NewPreRollBufferForDuration(3*time.Second, 16000, 1280)
	// 3s * 16000 / 1280 = 37.5
	if b.Cap() != 38 {
		t.Fatalf("expected capacity 38, got %d", b.Cap())
	}

	if got := NewPreRollBufferForDuration(0, 16000, 1280).Cap(); got != 1 {
		t.Fatalf("expected minimum capacity 1, got %d", got)
	}
}
