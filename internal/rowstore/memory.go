package rowstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Hooks let tests stage interleavings between
// concurrent readers and writers; the store itself adds no coordination beyond
// keeping its slice consistent.
type Memory struct {
	mu     sync.Mutex
	values [][]string

	// AfterRead runs after a snapshot is taken, outside the lock.
	AfterRead func()
	// BeforeAppend runs before a row is written, outside the lock.
	BeforeAppend func(values []string)

	ReadErr   error
	AppendErr error

	reads   int
	appends int
}

// NewMemory returns a store seeded with a copy of values (header first).
func NewMemory(values ...[]string) *Memory {
	m := &Memory{}
	for _, row := range values {
		m.values = append(m.values, copyRow(row))
	}
	return m
}

func (m *Memory) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.reads++
	if m.ReadErr != nil {
		err := m.ReadErr
		m.mu.Unlock()
		return nil, err
	}
	snapshot := make([][]string, len(m.values))
	for i, row := range m.values {
		snapshot[i] = copyRow(row)
	}
	hook := m.AfterRead
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snapshot, nil
}

func (m *Memory) Append(ctx context.Context, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	hook := m.BeforeAppend
	m.mu.Unlock()
	if hook != nil {
		hook(values)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.values = append(m.values, copyRow(values))
	m.appends++
	return nil
}

// Rows returns a copy of every stored row, header first.
func (m *Memory) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.values))
	for i, row := range m.values {
		out[i] = copyRow(row)
	}
	return out
}

// Stats reports how many reads and successful appends the store has served.
func (m *Memory) Stats() (reads, appends int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.appends
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
