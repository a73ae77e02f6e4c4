package marketplace

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/marketd/internal/record"
)

// EventKind classifies orchestrator events.
type EventKind string

const (
	EventState               EventKind = "state"
	EventLogRecord           EventKind = "log_record"
	EventEscrow              EventKind = "escrow"
	EventAgentStatus         EventKind = "agent_status"
	EventAwaitingBidApproval EventKind = "awaiting_bid_approval"
	EventAwaitingReview      EventKind = "awaiting_review"
	EventReputation          EventKind = "reputation"
	EventBalances            EventKind = "balances"
	EventError               EventKind = "error"
	EventNote                EventKind = "note"
)

// Event is the core's only output channel besides the log itself.
type Event struct {
	Kind EventKind `json:"kind"`
	Data any       `json:"data"`
}

// Sink receives orchestrator events. Implementations must not block for
// long: events are emitted synchronously from the run goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards all events.
func NopSink() Sink { return SinkFunc(func(Event) {}) }

// MultiSink fans every event out to each sink in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}

// StateChange is the payload of an EventState event, emitted before any
// work in the new state begins.
type StateChange struct {
	State State `json:"state"`
}

// LogRecord is the payload of an EventLogRecord event, describing a record
// the orchestrator appended to or observed on the log.
type LogRecord struct {
	Sequence  uint64          `json:"seq"`
	Type      record.Type     `json:"type"`
	Sender    string          `json:"sender"`
	Role      record.Role     `json:"role,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// EscrowSnapshot is the payload of an EventEscrow event.
type EscrowSnapshot struct {
	Locked    int64 `json:"locked"`
	Released  int64 `json:"released"`
	Remaining int64 `json:"remaining"`
}

// AgentStatus is the payload of an EventAgentStatus event.
type AgentStatus struct {
	Role   record.Role `json:"role"`
	Status string      `json:"status"` // working, delivered, timeout, done
	Detail string      `json:"detail,omitempty"`
}

// AwaitingBidApproval is the payload of an EventAwaitingBidApproval event.
// The run is suspended until a BidApproval arrives.
type AwaitingBidApproval struct {
	Bids []record.Bid `json:"bids"`
}

// AwaitingReview is the payload of an EventAwaitingReview event. Either
// deliverable may be nil when the corresponding work phase timed out.
type AwaitingReview struct {
	Analyst   *record.Deliverable `json:"analystDeliverable"`
	Architect *record.Deliverable `json:"architectDeliverable"`
}

// ReputationEvent is the payload of an EventReputation event. Err is set
// when a best-effort registry call failed and was ignored.
type ReputationEvent struct {
	Action  string      `json:"action"` // registered, feedback_recorded
	Role    record.Role `json:"role"`
	AgentID string      `json:"agentId,omitempty"`
	Score   int         `json:"score,omitempty"`
	TxHash  string      `json:"txHash,omitempty"`
	Err     string      `json:"error,omitempty"`
}

// BalanceSnapshot is the payload of an EventBalances event.
type BalanceSnapshot struct {
	Asset    string           `json:"asset"`
	Balances map[string]int64 `json:"balances"`
}

// ErrorEvent is the payload of an EventError event.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Note is the payload of an EventNote event: free-form progress notices
// such as poll status.
type Note struct {
	Message string `json:"message"`
}
