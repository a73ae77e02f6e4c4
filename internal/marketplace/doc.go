// Package marketplace implements the commissioned-work orchestration core.
//
// A requester commissions two specialist agents (analyst, architect) to
// jointly produce a deliverable. All coordination happens by exchanging
// records on a shared append-only log; the orchestrator never contacts an
// agent directly. The run is a single sequential state machine:
//
//	IDLE → REQUEST → BIDDING → AWAITING_BID_APPROVAL → ANALYST_WORKING
//	     → ARCHITECT_WORKING → AWAITING_REVIEW → RELEASING → COMPLETE
//
// The two AWAITING states are genuine suspension points: the run blocks on
// the approval bridge until a human decision arrives through the inbound
// control surface. Everything the core observes or does is mirrored to an
// event sink for dashboards and tests.
package marketplace
