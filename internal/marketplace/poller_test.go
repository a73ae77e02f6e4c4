package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marketd/internal/chainlog"
	"github.com/fyrsmithlabs/marketd/internal/record"
)

func appendPayload(t *testing.T, log chainlog.Log, v any) chainlog.Entry {
	t.Helper()
	payload, err := record.Marshal(v)
	require.NoError(t, err)
	entry, err := log.Append(context.Background(), payload)
	require.NoError(t, err)
	return entry
}

func testBid(requestID string, role record.Role, sender string, price int64) record.Bid {
	return record.Bid{
		Envelope: record.Envelope{
			Type:      record.TypeBid,
			RequestID: requestID,
			Sender:    sender,
			Timestamp: time.Now().UTC(),
		},
		Role:  role,
		Price: price,
	}
}

func TestPoller_ReturnsImmediatelyWhenEnoughMatchesExist(t *testing.T) {
	log := chainlog.NewMemory()
	appendPayload(t, log, testBid("req-1", record.RoleAnalyst, "agent-a", 400))
	_, err := log.Append(context.Background(), []byte("not json at all"))
	require.NoError(t, err)
	_, err = log.Append(context.Background(), []byte(`{"unrelated":true}`))
	require.NoError(t, err)
	appendPayload(t, log, testBid("req-1", record.RoleArchitect, "agent-b", 500))

	p := NewPoller(log, time.Minute, nil, nil)

	start := time.Now()
	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid, RequestID: "req-1"}, 2, time.Minute)
	require.NoError(t, err)

	// Both bids were already on the log, so no pacing wait happened.
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, matches, 2)
	assert.Equal(t, uint64(1), matches[0].Entry.Sequence)
	assert.Equal(t, uint64(4), matches[1].Entry.Sequence)
	assert.Equal(t, record.RoleAnalyst, matches[0].Message.Role)
	assert.Equal(t, record.RoleArchitect, matches[1].Message.Role)
}

func TestPoller_AfterSeqExcludesOlderRecords(t *testing.T) {
	log := chainlog.NewMemory()
	first := appendPayload(t, log, testBid("req-1", record.RoleAnalyst, "agent-a", 400))
	appendPayload(t, log, testBid("req-1", record.RoleArchitect, "agent-b", 500))

	p := NewPoller(log, 10*time.Millisecond, nil, nil)

	matches, err := p.Poll(context.Background(), Predicate{
		Type:      record.TypeBid,
		RequestID: "req-1",
		AfterSeq:  first.Sequence,
	}, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, record.RoleArchitect, matches[0].Message.Role)
}

func TestPoller_RoleAndRequestFilters(t *testing.T) {
	log := chainlog.NewMemory()
	appendPayload(t, log, record.Deliverable{
		Envelope: record.Envelope{Type: record.TypeDeliverable, RequestID: "req-1", Sender: "agent-a"},
		Role:     record.RoleAnalyst,
	})
	appendPayload(t, log, record.Deliverable{
		Envelope: record.Envelope{Type: record.TypeDeliverable, RequestID: "req-1", Sender: "agent-b"},
		Role:     record.RoleArchitect,
	})
	appendPayload(t, log, record.Deliverable{
		Envelope: record.Envelope{Type: record.TypeDeliverable, RequestID: "req-other", Sender: "agent-c"},
		Role:     record.RoleArchitect,
	})

	p := NewPoller(log, 10*time.Millisecond, nil, nil)

	matches, err := p.Poll(context.Background(), Predicate{
		Type:      record.TypeDeliverable,
		Role:      record.RoleArchitect,
		RequestID: "req-1",
	}, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "agent-b", matches[0].Message.Sender)
}

func TestPoller_TimeoutReturnsPartialWithoutError(t *testing.T) {
	log := chainlog.NewMemory()
	appendPayload(t, log, testBid("req-1", record.RoleAnalyst, "agent-a", 400))

	p := NewPoller(log, 10*time.Millisecond, nil, nil)

	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid, RequestID: "req-1"}, 2, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPoller_EmptyTimeoutIsNotAnError(t *testing.T) {
	p := NewPoller(chainlog.NewMemory(), 10*time.Millisecond, nil, nil)

	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid}, 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPoller_PicksUpLateRecords(t *testing.T) {
	log := chainlog.NewMemory()
	p := NewPoller(log, 5*time.Millisecond, nil, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		payload, _ := record.Marshal(testBid("req-1", record.RoleAnalyst, "agent-a", 400))
		log.Append(context.Background(), payload) //nolint:errcheck
	}()

	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid, RequestID: "req-1"}, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestPoller_ContextCancellation(t *testing.T) {
	p := NewPoller(chainlog.NewMemory(), 5*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Poll(ctx, Predicate{Type: record.TypeBid}, 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoller_RetriesTransientReadFailures(t *testing.T) {
	log := chainlog.NewMemory()
	appendPayload(t, log, testBid("req-1", record.RoleAnalyst, "agent-a", 400))
	log.FailReads(3, errors.New("stream briefly unavailable"))

	p := NewPoller(log, time.Millisecond, nil, nil)

	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid, RequestID: "req-1"}, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestPoller_GivesUpAfterRepeatedReadFailures(t *testing.T) {
	log := chainlog.NewMemory()
	readErr := errors.New("stream gone")
	log.FailReads(maxConsecutiveReadFailures+1, readErr)

	p := NewPoller(log, time.Millisecond, nil, nil)

	_, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid}, 1, 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
}

func TestPoller_DeduplicatesAcrossCycles(t *testing.T) {
	log := chainlog.NewMemory()
	appendPayload(t, log, testBid("req-1", record.RoleAnalyst, "agent-a", 400))

	p := NewPoller(log, 5*time.Millisecond, nil, nil)

	// The single bid is re-read every cycle but must count only once.
	matches, err := p.Poll(context.Background(), Predicate{Type: record.TypeBid, RequestID: "req-1"}, 2, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
