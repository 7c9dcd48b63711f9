package orchestration

import (
	"fmt"
	"testing"

	"github.com/levial/levial/core/llms"
)

func TestHistoryKeepsMostRecentTurnsInOrder(t *testing.T) {
	history := NewHistory(4)
	for i := range 7 {
		history.Append(llms.NewTurn(llms.RoleUser, fmt.Sprintf("turn %d", i)))
	}

	turns := history.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if expected := fmt.Sprintf("turn %d", i+3); turn.Text != expected {
			t.Fatalf("expected turn %d to be %q, got %q", i, expected, turn.Text)
		}
	}
}

func TestHistoryAppendsExchangeAtomically(t *testing.T) {
	history := NewHistory(3)
	history.Append(llms.NewTurn(llms.RoleUser, "q1"), llms.NewTurn(llms.RoleAssistant, "a1"))
	history.Append(llms.NewTurn(llms.RoleUser, "q2"), llms.NewTurn(llms.RoleAssistant, "a2"))

	turns := history.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Text != "a1" || turns[1].Text != "q2" || turns[2].Text != "a2" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestHistoryTurnsReturnsCopy(t *testing.T) {
	history := NewHistory(2)
	history.Append(llms.NewTurn(llms.RoleUser, "original"))

	turns := history.Turns()
	turns[0].Text = "changed"

	if got := history.Turns()[0].Text; got != "original" {
		t.Fatalf("expected history to be unchanged, got %q", got)
	}
}

func TestHistoryWithoutCapacityKeepsNothing(t *testing.T) {
	history := NewHistory(0)
	history.Append(llms.NewTurn(llms.RoleUser, "hello"))

	if history.Len() != 0 {
		t.Fatalf("expected empty history, got %d turns", history.Len())
	}
}
