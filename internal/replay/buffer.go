package replay

import (
	"sync"

	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

// EventBuffer collects committed ledger events until they are drained.
type EventBuffer struct {
	mu     sync.Mutex
	events []model.LedgerEvent
}

func NewEventBuffer() *EventBuffer {
	return &EventBuffer{}
}

func (b *EventBuffer) Notify(ev ledger.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev.Record())
	b.mu.Unlock()
}

// Drain returns the buffered events and resets the buffer.
func (b *EventBuffer) Drain() []model.LedgerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}
