package reputation

import (
	"context"

	"github.com/fyrsmithlabs/marketd/internal/record"
)

// Registration identifies an agent registered with the registry.
type Registration struct {
	AgentID string `json:"agentId"`
	TxHash  string `json:"txHash"`
}

// Receipt acknowledges a recorded reputation entry.
type Receipt struct {
	TxHash string `json:"txHash"`
}

// Context ties a reputation entry to the session it came from.
type Context struct {
	RequestID string      `json:"requestId"`
	Role      record.Role `json:"role"`
}

// Registrar records agent identities and scored feedback.
type Registrar interface {
	// RegisterAgent registers an agent identity under a role.
	RegisterAgent(ctx context.Context, name, account string, role record.Role) (Registration, error)

	// RecordReputation records scored feedback against a registered agent.
	RecordReputation(ctx context.Context, agentID string, score int, feedback string, rc Context) (Receipt, error)
}
