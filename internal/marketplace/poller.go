package marketplace

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/marketd/internal/chainlog"
	"github.com/fyrsmithlabs/marketd/internal/logging"
	"github.com/fyrsmithlabs/marketd/internal/record"
)

const (
	// defaultPollInterval paces log re-reads. Agents act on their own
	// schedule, so there is nothing to gain from polling faster.
	defaultPollInterval = 5 * time.Second

	// maxConsecutiveReadFailures is the poller's retry budget: transient
	// read failures are retried, not surfaced, until this many happen in
	// a row.
	maxConsecutiveReadFailures = 10
)

// Predicate selects records from the log. Type and RequestID must match
// exactly; Role is matched only when non-empty. Records at or below
// AfterSeq are never returned, which is how successive polls within one
// session stay strictly increasing.
type Predicate struct {
	Type      record.Type
	Role      record.Role
	RequestID string
	AfterSeq  uint64
}

func (p Predicate) matches(msg *record.Message) bool {
	if msg.Type != p.Type {
		return false
	}
	if p.RequestID != "" && msg.RequestID != p.RequestID {
		return false
	}
	if p.Role != "" && msg.Role != p.Role {
		return false
	}
	return true
}

// Match is a log entry that satisfied a predicate, with its parsed payload.
type Match struct {
	Entry   chainlog.Entry
	Message *record.Message
}

// Poller repeatedly reads a log and collects records matching a predicate,
// deduplicated by sequence number. Correctness rests entirely on sequence
// numbers: the backing log may be re-read from scratch every cycle and may
// redeliver records already seen.
type Poller struct {
	log      chainlog.Log
	interval time.Duration
	logger   *logging.Logger
	sink     Sink
}

// NewPoller creates a poller over log. A zero interval selects the default.
func NewPoller(log chainlog.Log, interval time.Duration, logger *logging.Logger, sink Sink) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = NopSink()
	}
	return &Poller{log: log, interval: interval, logger: logger, sink: sink}
}

// Poll reads the log until minCount matches accumulate or timeout elapses,
// whichever comes first. On timeout it returns whatever was accumulated,
// possibly nothing, without error; "not enough matches" is never an error.
// An error is returned only when the run context is cancelled or the log
// backend keeps failing beyond the poller's retry budget.
func (p *Poller) Poll(ctx context.Context, pred Predicate, minCount int, timeout time.Duration) ([]Match, error) {
	deadline := time.Now().Add(timeout)
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	limiter.Allow() // first read happens before pacing; spend the initial token

	seen := make(map[uint64]struct{})
	var matches []Match
	failures := 0

	p.sink.Emit(Event{Kind: EventNote, Data: Note{
		Message: fmt.Sprintf("polling for %s records (want %d, timeout %s)", pred.Type, minCount, timeout.Round(time.Second)),
	}})

	for {
		entries, err := p.log.ReadAll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return matches, ctx.Err()
		case err != nil:
			failures++
			p.logger.Warn(ctx, "log read failed, retrying",
				zap.Error(err),
				zap.Int("consecutive_failures", failures))
			if failures > maxConsecutiveReadFailures {
				return matches, fmt.Errorf("poll: log read failed %d times in a row: %w", failures, err)
			}
		default:
			failures = 0
			for _, entry := range entries {
				if entry.Sequence <= pred.AfterSeq {
					continue
				}
				if _, dup := seen[entry.Sequence]; dup {
					continue
				}

				msg, err := record.Parse(entry.Payload)
				if err != nil {
					// Not a marketplace record. Remember the
					// sequence so we never re-parse it.
					seen[entry.Sequence] = struct{}{}
					continue
				}
				if !pred.matches(msg) {
					continue
				}

				seen[entry.Sequence] = struct{}{}
				matches = append(matches, Match{Entry: entry, Message: msg})

				p.sink.Emit(Event{Kind: EventNote, Data: Note{
					Message: fmt.Sprintf("matched %s record seq %d (%d of %d)", msg.Type, entry.Sequence, len(matches), minCount),
				}})

				if len(matches) >= minCount {
					return matches, nil
				}
			}
			if len(matches) >= minCount {
				return matches, nil
			}
		}

		if !time.Now().Before(deadline) {
			break
		}

		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err = limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return matches, ctx.Err()
			}
			break // deadline reached while pacing
		}
	}

	p.sink.Emit(Event{Kind: EventNote, Data: Note{
		Message: fmt.Sprintf("poll timeout: collected %d of %d %s records", len(matches), minCount, pred.Type),
	}})
	return matches, nil
}
