package events

import (
	"sync/atomic"
	"time"
)

type Kind string

// Event is implemented by every orchestration event. Order is unique within
// the process and increases in construction order, so handlers that receive
// events from several goroutines can restore that order.
type Event interface {
	Kind() Kind
	Order() uint64
	Timestamp() time.Time
}

var sequence atomic.Uint64

type Base struct {
	kind      Kind
	order     uint64
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, order: sequence.Add(1), timestamp: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Order() uint64        { return b.order }
func (b Base) Timestamp() time.Time { return b.timestamp }
