package reputation

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/marketd/internal/record"
)

// Agent is a registered identity held by the in-memory registry.
type Agent struct {
	ID      string
	Name    string
	Account string
	Role    record.Role
}

// Entry is one recorded piece of feedback.
type Entry struct {
	AgentID  string
	Score    int
	Feedback string
	Context  Context
}

// Memory is an in-memory Registrar for tests and self-contained
// deployments. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	agents  map[string]Agent
	entries []Entry
	nextID  uint64
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{agents: make(map[string]Agent)}
}

// RegisterAgent stores the identity and returns its assigned ID.
func (m *Memory) RegisterAgent(ctx context.Context, name, account string, role record.Role) (Registration, error) {
	if err := ctx.Err(); err != nil {
		return Registration{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	agent := Agent{
		ID:      fmt.Sprintf("agent-%d", m.nextID),
		Name:    name,
		Account: account,
		Role:    role,
	}
	m.agents[agent.ID] = agent

	return Registration{
		AgentID: agent.ID,
		TxHash:  fmt.Sprintf("0xreg%04d", m.nextID),
	}, nil
}

// RecordReputation stores a feedback entry for a registered agent.
func (m *Memory) RecordReputation(ctx context.Context, agentID string, score int, feedback string, rc Context) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agentID]; !ok {
		return Receipt{}, fmt.Errorf("reputation: agent %s not registered", agentID)
	}

	m.entries = append(m.entries, Entry{
		AgentID:  agentID,
		Score:    score,
		Feedback: feedback,
		Context:  rc,
	})

	return Receipt{TxHash: fmt.Sprintf("0xfb%04d", len(m.entries))}, nil
}

// Entries returns a copy of all recorded feedback.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
