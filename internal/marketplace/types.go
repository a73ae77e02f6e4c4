package marketplace

import (
	"github.com/fyrsmithlabs/marketd/internal/record"
)

// State is a stop on the orchestration state machine. Transitions move
// strictly forward through the order returned by States; a session never
// revisits an earlier state.
type State string

const (
	StateIdle                State = "IDLE"
	StateRequest             State = "REQUEST"
	StateBidding             State = "BIDDING"
	StateAwaitingBidApproval State = "AWAITING_BID_APPROVAL"
	StateAnalystWorking      State = "ANALYST_WORKING"
	StateArchitectWorking    State = "ARCHITECT_WORKING"
	StateAwaitingReview      State = "AWAITING_REVIEW"
	StateReleasing           State = "RELEASING"
	StateComplete            State = "COMPLETE"
)

// States returns every state in transition order.
func States() []State {
	return []State{
		StateIdle,
		StateRequest,
		StateBidding,
		StateAwaitingBidApproval,
		StateAnalystWorking,
		StateArchitectWorking,
		StateAwaitingReview,
		StateReleasing,
		StateComplete,
	}
}

// index returns the position of s in the fixed ordering, or -1.
func (s State) index() int {
	for i, st := range States() {
		if st == s {
			return i
		}
	}
	return -1
}

// CanAdvanceTo reports whether next is the immediate successor of s.
func (s State) CanAdvanceTo(next State) bool {
	i, j := s.index(), next.index()
	return i >= 0 && j == i+1
}

// Allocation is the human-approved account and price for one role.
// Prices are chosen by the approver and are deliberately not validated
// against the session budget.
type Allocation struct {
	Account string `json:"account"`
	Price   int64  `json:"price"`
}

// Session tracks one commissioned-work transaction from trigger to
// completion. It is created on trigger, mutated only by the orchestrator,
// and discarded on reset or natural completion.
type Session struct {
	RequestID   string `json:"requestId"`
	State       State  `json:"state"`
	PaperURL    string `json:"paperUrl"`
	Budget      int64  `json:"budget"`
	Description string `json:"description"`

	// EscrowLocked is fixed at session creation and never changes.
	// EscrowReleased is the sum of executed releases and never exceeds
	// EscrowLocked.
	EscrowLocked   int64 `json:"escrowLocked"`
	EscrowReleased int64 `json:"escrowReleased"`

	Bids              []record.Bid `json:"bids"`
	AcceptedAnalyst   *Allocation  `json:"acceptedAnalyst,omitempty"`
	AcceptedArchitect *Allocation  `json:"acceptedArchitect,omitempty"`

	AnalystDeliverable   *record.Deliverable `json:"analystDeliverable,omitempty"`
	ArchitectDeliverable *record.Deliverable `json:"architectDeliverable,omitempty"`

	Reviews  []record.ClientReview  `json:"reviews"`
	Releases []record.EscrowRelease `json:"releases"`
}

// Accepted returns the approved allocation for a role, or nil.
func (s *Session) Accepted(role record.Role) *Allocation {
	if role == record.RoleAnalyst {
		return s.AcceptedAnalyst
	}
	return s.AcceptedArchitect
}

// Deliverable returns the stored deliverable for a role, or nil if that
// role's work phase timed out without one.
func (s *Session) Deliverable(role record.Role) *record.Deliverable {
	if role == record.RoleAnalyst {
		return s.AnalystDeliverable
	}
	return s.ArchitectDeliverable
}

// BidApproval is the requester's decision on which bids to accept, supplied
// through the inbound control surface. Prices are human-chosen and may
// over- or under-commit relative to the locked budget.
type BidApproval struct {
	AnalystAccount string `json:"analystAccountId"`
	AnalystPrice   int64  `json:"analystPrice"`

	ArchitectAccount string `json:"architectAccountId"`
	ArchitectPrice   int64  `json:"architectPrice"`
}

// For returns the approved account and price for a role.
func (a BidApproval) For(role record.Role) (string, int64) {
	if role == record.RoleAnalyst {
		return a.AnalystAccount, a.AnalystPrice
	}
	return a.ArchitectAccount, a.ArchitectPrice
}

// RoleReview is one role's slice of a client review.
type RoleReview struct {
	Approved bool   `json:"approved"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// ClientReview is the requester's verdict on both deliverables, supplied
// through the inbound control surface.
type ClientReview struct {
	AnalystApproved bool   `json:"analystApproved"`
	AnalystScore    int    `json:"analystScore"`
	AnalystFeedback string `json:"analystFeedback"`

	ArchitectApproved bool   `json:"architectApproved"`
	ArchitectScore    int    `json:"architectScore"`
	ArchitectFeedback string `json:"architectFeedback"`
}

// For returns the review slice for a role.
func (r ClientReview) For(role record.Role) RoleReview {
	if role == record.RoleAnalyst {
		return RoleReview{Approved: r.AnalystApproved, Score: r.AnalystScore, Feedback: r.AnalystFeedback}
	}
	return RoleReview{Approved: r.ArchitectApproved, Score: r.ArchitectScore, Feedback: r.ArchitectFeedback}
}

// Request triggers a new session.
type Request struct {
	PaperURL    string `json:"paperUrl"`
	Budget      int64  `json:"budget"`
	Description string `json:"description"`
}
