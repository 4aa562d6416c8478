// Package memory provides an in-memory Publisher for development and tests.
package memory

import (
	"context"
	"sync"
)

// Publisher records published payloads.
type Publisher struct {
	mu       sync.Mutex
	payloads []any
}

// New constructs a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the payload to the in-memory log.
func (p *Publisher) Publish(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

// Payloads returns a copy of everything published so far.
func (p *Publisher) Payloads() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.payloads))
	copy(out, p.payloads)
	return out
}
