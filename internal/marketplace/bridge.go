package marketplace

import (
	"errors"
	"sync"
)

// ErrApprovalPending is returned when a wait of the same kind is already
// armed. Only one session is ever active, so this indicates a bug in the
// caller rather than a user error.
var ErrApprovalPending = errors.New("marketplace: approval wait already pending")

// Bridge converts out-of-band human decisions into values the sequential
// run can block on. It holds exactly one pending waiter slot per approval
// kind; submissions with no pending waiter are deliberately dropped, never
// queued.
type Bridge struct {
	mu         sync.Mutex
	bidSlot    chan BidApproval
	reviewSlot chan ClientReview
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// ExpectBidApproval arms the bid-approval slot and returns the channel the
// submitted value will arrive on. The caller must either receive from the
// channel or call CancelBidApproval. Arming while a wait is pending returns
// ErrApprovalPending.
func (b *Bridge) ExpectBidApproval() (<-chan BidApproval, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bidSlot != nil {
		return nil, ErrApprovalPending
	}
	b.bidSlot = make(chan BidApproval, 1)
	return b.bidSlot, nil
}

// SubmitBidApproval resolves a pending bid-approval wait. It reports
// whether the value was delivered; a submission with no pending wait is a
// silent no-op and returns false.
func (b *Bridge) SubmitBidApproval(approval BidApproval) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bidSlot == nil {
		return false
	}
	b.bidSlot <- approval
	b.bidSlot = nil
	return true
}

// CancelBidApproval disarms a pending bid-approval wait, if any.
func (b *Bridge) CancelBidApproval() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bidSlot = nil
}

// ExpectReview arms the review slot. Semantics match ExpectBidApproval.
func (b *Bridge) ExpectReview() (<-chan ClientReview, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reviewSlot != nil {
		return nil, ErrApprovalPending
	}
	b.reviewSlot = make(chan ClientReview, 1)
	return b.reviewSlot, nil
}

// SubmitReview resolves a pending review wait. Semantics match
// SubmitBidApproval.
func (b *Bridge) SubmitReview(review ClientReview) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reviewSlot == nil {
		return false
	}
	b.reviewSlot <- review
	b.reviewSlot = nil
	return true
}

// CancelReview disarms a pending review wait, if any.
func (b *Bridge) CancelReview() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reviewSlot = nil
}
