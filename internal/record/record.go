package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of marketplace record.
type Type string

const (
	TypeCourseRequest  Type = "course_request"
	TypeEscrowLock     Type = "escrow_lock"
	TypeBid            Type = "bid"
	TypeBidAccepted    Type = "bid_accepted"
	TypeDeliverable    Type = "deliverable"
	TypeClientReview   Type = "client_review"
	TypeEscrowRelease  Type = "escrow_release"
	TypeCourseComplete Type = "course_complete"
)

// Role is one of the two specialist work assignments tracked independently
// through bidding, delivery, review, and release.
type Role string

const (
	RoleAnalyst   Role = "analyst"
	RoleArchitect Role = "architect"
)

// Roles returns both roles in their working order.
func Roles() []Role {
	return []Role{RoleAnalyst, RoleArchitect}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAnalyst || r == RoleArchitect
}

// Envelope carries the fields common to every record on the log.
type Envelope struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"requestId"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// CourseRequest opens a session: a requester commissions work on a paper.
type CourseRequest struct {
	Envelope
	PaperURL    string `json:"paperUrl"`
	Budget      int64  `json:"budget"`
	Description string `json:"description"`
}

// EscrowLock records that the full budget has been locked in escrow.
type EscrowLock struct {
	Envelope
	EscrowAccount string `json:"escrowAccountId"`
	Asset         string `json:"asset"`
	Amount        int64  `json:"amount"`
	TxID          string `json:"txId"`
}

// Bid is an agent's offer to perform one role for a price.
type Bid struct {
	Envelope
	Role  Role   `json:"role"`
	Price int64  `json:"price"`
	Pitch string `json:"pitch"`
}

// BidAccepted records the human-approved price allocation for one role.
type BidAccepted struct {
	Envelope
	BidderAccount string `json:"bidderAccountId"`
	Role          Role   `json:"role"`
	Price         int64  `json:"price"`
}

// Deliverable is the work product an agent posts for its role.
// Content is kept raw: agents choose their own result structure.
type Deliverable struct {
	Envelope
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ClientReview records the requester's verdict on one role's deliverable.
type ClientReview struct {
	Envelope
	TargetRole    Role   `json:"targetRole"`
	TargetAccount string `json:"targetAccountId"`
	Approved      bool   `json:"approved"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
}

// EscrowRelease records a payout of one role's allocation out of escrow.
type EscrowRelease struct {
	Envelope
	ToAccount string `json:"toAccountId"`
	Role      Role   `json:"role"`
	Amount    int64  `json:"amount"`
	TxID      string `json:"txId"`
}

// CourseComplete terminates a session on the log.
type CourseComplete struct {
	Envelope
	CourseTitle string   `json:"courseTitle"`
	Modules     []string `json:"modules"`
}

// Message is a parsed record: the envelope fields every consumer filters on,
// plus the raw payload for typed decoding.
type Message struct {
	Type      Type
	RequestID string
	Sender    string
	Role      Role
	Timestamp time.Time
	raw       json.RawMessage
}

// probe mirrors the envelope plus the optional role field shared by bid and
// deliverable records.
type probe struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"requestId"`
	Sender    string    `json:"sender"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Parse decodes the envelope of a raw log payload. It returns an error for
// payloads that are not JSON objects or carry no type; callers polling the
// log treat that as "not a marketplace record" and skip the entry.
func Parse(raw []byte) (*Message, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if p.Type == "" {
		return nil, fmt.Errorf("parse record: missing type field")
	}
	return &Message{
		Type:      p.Type,
		RequestID: p.RequestID,
		Sender:    p.Sender,
		Role:      p.Role,
		Timestamp: p.Timestamp,
		raw:       append(json.RawMessage(nil), raw...),
	}, nil
}

// Decode unmarshals the full record into a typed struct.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("decode %s record: %w", m.Type, err)
	}
	return nil
}

// Raw returns the record's raw JSON payload.
func (m *Message) Raw() json.RawMessage {
	return m.raw
}

// Marshal encodes a record for appending to the log.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}
