// Package memory keeps published messages in memory for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/classic-hero/classichero/internal/publisher"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Publisher records every message it is given.
type Publisher struct {
	mu       sync.RWMutex
	messages []publisher.Message
	closed   bool
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records a copy of msg and returns a sequential id.
func (p *Publisher) Publish(_ context.Context, msg publisher.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	cp := publisher.Message{Data: append([]byte(nil), msg.Data...)}
	if msg.Attributes != nil {
		cp.Attributes = make(map[string]string, len(msg.Attributes))
		for k, v := range msg.Attributes {
			cp.Attributes[k] = v
		}
	}
	p.messages = append(p.messages, cp)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded messages in publish order.
func (p *Publisher) Messages() []publisher.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]publisher.Message(nil), p.messages...)
}

// Close makes later publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
