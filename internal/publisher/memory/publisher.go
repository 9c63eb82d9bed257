// Package memory contains the in-memory publisher used in development mode
// and tests, where no Pub/Sub topic is configured. It retains run completion
// events in publish order so they can be asserted on or dumped.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunEvent captures one published run completion.
type RunEvent struct {
	Seq       int
	Topic     string
	Payload   any
	Published time.Time
}

// Publisher retains run events instead of pushing them anywhere.
type Publisher struct {
	mu     sync.RWMutex
	events []RunEvent
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns its synthetic message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := len(p.events) + 1
	p.events = append(p.events, RunEvent{
		Seq:       seq,
		Topic:     topic,
		Payload:   payload,
		Published: time.Now().UTC(),
	})
	return fmt.Sprintf("memory-%d", seq), nil
}

// Events returns the recorded run events in publish order.
func (p *Publisher) Events() []RunEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]RunEvent, len(p.events))
	copy(out, p.events)
	return out
}

// OnTopic filters the recorded events down to one topic.
func (p *Publisher) OnTopic(topic string) []RunEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []RunEvent
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
