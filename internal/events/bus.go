// Package events fans phase changes of search requests out to subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

// PhaseEvent announces that a request entered a phase.
type PhaseEvent struct {
	RequestID string               `json:"request_id"`
	Phase     domain.RequestStatus `json:"phase"`
	Message   string               `json:"message,omitempty"`
	At        time.Time            `json:"at"`
}

func (e PhaseEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalPhaseEvent(raw []byte) (PhaseEvent, error) {
	var e PhaseEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return PhaseEvent{}, fmt.Errorf("decode phase event: %w", err)
	}
	return e, nil
}

// Bus publishes phase events and streams them per request.
type Bus interface {
	Publish(ctx context.Context, e PhaseEvent) error
	// Subscribe returns a channel of events for the request. It is closed
	// once ctx is done.
	Subscribe(ctx context.Context, requestID string) (<-chan PhaseEvent, error)
}

const subscriberBuffer = 16

// MemoryBus is an in-process Bus for single-instance deployments and tests.
// Slow subscribers drop events rather than block publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[chan PhaseEvent]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan PhaseEvent]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, e PhaseEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[e.RequestID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, requestID string) (<-chan PhaseEvent, error) {
	ch := make(chan PhaseEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[requestID] == nil {
		b.subs[requestID] = make(map[chan PhaseEvent]struct{})
	}
	b.subs[requestID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[requestID], ch)
		if len(b.subs[requestID]) == 0 {
			delete(b.subs, requestID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
