package events

const (
	// KindTurnStarted identifies the start of a turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies successful turn completion.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnSkipped identifies a turn without usable input.
	KindTurnSkipped Kind = "turn_state.skipped"
	// KindTurnFailed identifies turn failure.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of a turn.
type TurnStarted struct {
	Base
	TurnID string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID}
}

// TurnCompleted marks successful completion of a turn.
type TurnCompleted struct {
	Base
	TurnID string
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// TurnSkipped marks a turn that produced nothing to respond to.
type TurnSkipped struct {
	Base
	TurnID string
	Reason string
}

// NewTurnSkipped creates a turn skipped event.
func NewTurnSkipped(turnID, reason string) TurnSkipped {
	return TurnSkipped{Base: NewBase(KindTurnSkipped), TurnID: turnID, Reason: reason}
}

// TurnFailed marks a turn aborted by a failing stage.
type TurnFailed struct {
	Base
	TurnID string
	Stage  string
	Error  string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(turnID, stage, err string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Stage: stage, Error: err}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct {
	Base
	TurnID string
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(turnID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}
