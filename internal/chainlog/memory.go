package chainlog

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Log. It is safe for concurrent use and supports
// injected append and read failures for exercising consumer retry paths.
type Memory struct {
	mu        sync.Mutex
	entries   []Entry
	nextSeq   uint64
	now       func() time.Time
	appendErr error
	readFails int
	readErr   error
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{
		nextSeq: 1,
		now:     time.Now,
	}
}

// Append stores the payload under the next sequence number.
func (m *Memory) Append(ctx context.Context, payload []byte) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return Entry{}, m.appendErr
	}

	entry := Entry{
		Sequence:  m.nextSeq,
		Timestamp: m.now().UTC(),
		Payload:   append([]byte(nil), payload...),
	}
	m.nextSeq++
	m.entries = append(m.entries, entry)
	return entry, nil
}

// ReadAll returns a copy of every entry in sequence order.
func (m *Memory) ReadAll(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readFails > 0 {
		m.readFails--
		return nil, m.readErr
	}

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// FailAppends makes every subsequent Append fail with err. Passing nil
// restores normal operation.
func (m *Memory) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// FailReads makes the next n ReadAll calls fail with err, then recover.
func (m *Memory) FailReads(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFails = n
	m.readErr = err
}

// Len returns the number of entries on the log.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
