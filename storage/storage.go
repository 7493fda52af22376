package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("state not found")

// State is a single persisted blob: one per memory map.
type State interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// TestState is a simple in-memory implementation for testing
type TestState struct {
	mu    sync.Mutex
	data  []byte
	err   error
	saves int
}

func NewTestState(data []byte) *TestState {
	return &TestState{data: data}
}

// NewTestStateWithError returns a state whose Load and Save both fail with err.
func NewTestStateWithError(err error) *TestState {
	return &TestState{err: err}
}

func (t *TestState) Load(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	if t.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), t.data...), nil
}

func (t *TestState) Save(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.data = append([]byte(nil), data...)
	t.saves++
	return nil
}

// Data returns the last saved bytes.
func (t *TestState) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.data...)
}

// Saves reports how many successful saves happened.
func (t *TestState) Saves() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saves
}
