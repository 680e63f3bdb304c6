// Package checkpoint persists bulk sync progress so an interrupted sync can
// resume from the last confirmed batch.
package checkpoint

import (
	"context"
	"sync"
)

// Op names for error context.
const (
	OpLoad  = "load"
	OpSave  = "save"
	OpClear = "clear"
)

// Error wraps an underlying error with the operation name.
type Error struct {
	Op    string
	Index string
	Err   error
}

func (e *Error) Error() string { return "checkpoint " + e.Op + " " + e.Index + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Memory keeps offsets in process memory. Useful for tests and for
// one-shot CLI runs where resuming is not needed.
type Memory struct {
	mu      sync.Mutex
	offsets map[string]int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{offsets: make(map[string]int)}
}

func (m *Memory) Load(_ context.Context, index string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, ok := m.offsets[index]
	return off, ok, nil
}

func (m *Memory) Save(_ context.Context, index string, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[index] = offset
	return nil
}

func (m *Memory) Clear(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offsets, index)
	return nil
}
