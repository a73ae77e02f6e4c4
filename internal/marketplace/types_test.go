package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marketd/internal/record"
)

func TestStates_Order(t *testing.T) {
	want := []State{
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
	require.Equal(t, want, States())
}

func TestState_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"immediate successor", StateIdle, StateRequest, true},
		{"bidding to approval", StateBidding, StateAwaitingBidApproval, true},
		{"releasing to complete", StateReleasing, StateComplete, true},
		{"skip ahead", StateRequest, StateAwaitingBidApproval, false},
		{"backwards", StateAwaitingReview, StateBidding, false},
		{"self", StateBidding, StateBidding, false},
		{"past the end", StateComplete, StateIdle, false},
		{"unknown state", State("WAT"), StateRequest, false},
		{"unknown target", StateIdle, State("WAT"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestBidApproval_For(t *testing.T) {
	a := BidApproval{
		AnalystAccount:   "0.0.111",
		AnalystPrice:     400,
		ArchitectAccount: "0.0.222",
		ArchitectPrice:   500,
	}

	account, price := a.For(record.RoleAnalyst)
	assert.Equal(t, "0.0.111", account)
	assert.Equal(t, int64(400), price)

	account, price = a.For(record.RoleArchitect)
	assert.Equal(t, "0.0.222", account)
	assert.Equal(t, int64(500), price)
}

func TestClientReview_For(t *testing.T) {
	r := ClientReview{
		AnalystApproved:   true,
		AnalystScore:      95,
		AnalystFeedback:   "thorough",
		ArchitectApproved: false,
		ArchitectScore:    40,
		ArchitectFeedback: "incomplete",
	}

	analyst := r.For(record.RoleAnalyst)
	assert.True(t, analyst.Approved)
	assert.Equal(t, 95, analyst.Score)
	assert.Equal(t, "thorough", analyst.Feedback)

	architect := r.For(record.RoleArchitect)
	assert.False(t, architect.Approved)
	assert.Equal(t, 40, architect.Score)
	assert.Equal(t, "incomplete", architect.Feedback)
}

func TestSession_RoleAccessors(t *testing.T) {
	s := &Session{}
	assert.Nil(t, s.Accepted(record.RoleAnalyst))
	assert.Nil(t, s.Deliverable(record.RoleArchitect))

	s.AcceptedAnalyst = &Allocation{Account: "0.0.111", Price: 400}
	s.ArchitectDeliverable = &record.Deliverable{Role: record.RoleArchitect}

	require.NotNil(t, s.Accepted(record.RoleAnalyst))
	assert.Equal(t, int64(400), s.Accepted(record.RoleAnalyst).Price)
	assert.Nil(t, s.Accepted(record.RoleArchitect))

	require.NotNil(t, s.Deliverable(record.RoleArchitect))
	assert.Nil(t, s.Deliverable(record.RoleAnalyst))
}
