package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marketd/internal/chainlog"
	"github.com/fyrsmithlabs/marketd/internal/ledger"
	"github.com/fyrsmithlabs/marketd/internal/logging"
	"github.com/fyrsmithlabs/marketd/internal/record"
	"github.com/fyrsmithlabs/marketd/internal/reputation"
)

// ErrSessionActive is returned when a trigger arrives while a session is
// already running. The caller must reset first.
var ErrSessionActive = errors.New("marketplace: a session is already active")

// Infra names the accounts a marketplace run settles against. The treasury
// account must hold at least the session budget when Run starts; the escrow
// lock draws on it.
type Infra struct {
	TreasuryAccount  string
	EscrowAccount    string
	AnalystAccount   string
	ArchitectAccount string
	Asset            string
}

// Config tunes orchestration timing and the sender identities stamped on
// log records.
type Config struct {
	// Sender is recorded on records the orchestrator authors itself
	// (escrow_lock, escrow_release, course_complete).
	Sender string `koanf:"sender"`

	// Requester is recorded on records authored on the requester's
	// behalf (course_request, bid_accepted, client_review).
	Requester string `koanf:"requester"`

	PollInterval time.Duration `koanf:"poll_interval"`

	// BidTimeout and WorkTimeout are generous: the bidders and workers
	// are autonomous agents acting on their own schedule.
	BidTimeout  time.Duration `koanf:"bid_timeout"`
	WorkTimeout time.Duration `koanf:"work_timeout"`

	// SettleDelay is how long to wait after releases before reading
	// balances for the observability snapshot.
	SettleDelay time.Duration `koanf:"settle_delay"`
}

func (c Config) withDefaults() Config {
	if c.Sender == "" {
		c.Sender = "server"
	}
	if c.Requester == "" {
		c.Requester = "requester"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BidTimeout <= 0 {
		c.BidTimeout = 30 * time.Minute
	}
	if c.WorkTimeout <= 0 {
		c.WorkTimeout = 30 * time.Minute
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 6 * time.Second
	}
	return c
}

// Orchestrator drives one commissioned-work session at a time through the
// fixed state machine, coordinating exclusively over the log.
type Orchestrator struct {
	log       chainlog.Log
	ledger    ledger.Ledger
	registrar reputation.Registrar // may be nil: reputation is optional
	bridge    *Bridge
	poller    *Poller
	logger    *logging.Logger
	sink      Sink
	infra     Infra
	cfg       Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	state   State
	session *Session

	// agents holds best-effort registry registrations, written only by
	// the run goroutine.
	agents map[record.Role]reputation.Registration
}

// New creates an orchestrator. registrar may be nil; logger and sink may be
// nil and default to no-ops.
func New(log chainlog.Log, led ledger.Ledger, registrar reputation.Registrar, infra Infra, cfg Config, logger *logging.Logger, sink Sink) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = NopSink()
	}
	return &Orchestrator{
		log:       log,
		ledger:    led,
		registrar: registrar,
		bridge:    NewBridge(),
		poller:    NewPoller(log, cfg.PollInterval, logger, sink),
		logger:    logger,
		sink:      sink,
		infra:     infra,
		cfg:       cfg,
		state:     StateIdle,
		agents:    make(map[record.Role]reputation.Registration),
	}
}

// Bridge exposes the approval bridge for the inbound control surface.
func (o *Orchestrator) Bridge() *Bridge {
	return o.bridge
}

// State returns the current state machine position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Session returns a snapshot of the current session, or nil when idle.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	snap := *o.session
	snap.Bids = append([]record.Bid(nil), o.session.Bids...)
	snap.Reviews = append([]record.ClientReview(nil), o.session.Reviews...)
	snap.Releases = append([]record.EscrowRelease(nil), o.session.Releases...)
	if o.session.AcceptedAnalyst != nil {
		a := *o.session.AcceptedAnalyst
		snap.AcceptedAnalyst = &a
	}
	if o.session.AcceptedArchitect != nil {
		a := *o.session.AcceptedArchitect
		snap.AcceptedArchitect = &a
	}
	return &snap
}

// Reset abandons the current session: it cancels an in-flight run, disarms
// any pending approval waits, and discards session state. Sessions are
// never rewound, only discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	cancel := o.cancel
	o.session = nil
	o.state = StateIdle
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.bridge.CancelBidApproval()
	o.bridge.CancelReview()
}

// Run executes one full session. It blocks until the session completes,
// fails, or is cancelled via ctx or Reset. A second Run while one is in
// flight returns ErrSessionActive.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrSessionActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	requestID := fmt.Sprintf("req-%s", uuid.NewString()[:8])
	o.running = true
	o.cancel = cancel
	o.state = StateIdle
	o.session = &Session{
		RequestID:    requestID,
		State:        StateIdle,
		PaperURL:     req.PaperURL,
		Budget:       req.Budget,
		Description:  req.Description,
		EscrowLocked: req.Budget,
	}
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	ctx = logging.WithSessionID(runCtx, requestID)
	o.logger.Info(ctx, "session started",
		zap.String("paper_url", req.PaperURL),
		zap.Int64("budget", req.Budget))

	if err := o.run(ctx, requestID, req); err != nil {
		o.sink.Emit(Event{Kind: EventError, Data: ErrorEvent{Message: err.Error()}})
		o.logger.Error(ctx, "session failed", zap.Error(err))
		return err
	}

	o.logger.Info(ctx, "session complete")
	return nil
}

// run walks the state machine. Poll timeouts are non-fatal; only log
// appends and ledger releases abort the session.
func (o *Orchestrator) run(ctx context.Context, requestID string, req Request) error {
	o.registerAgents(ctx)

	// REQUEST: publish the commission and the escrow lock.
	o.transition(ctx, StateRequest)

	entry, err := o.appendRecord(ctx, record.CourseRequest{
		Envelope:    o.envelope(record.TypeCourseRequest, requestID, o.cfg.Requester),
		PaperURL:    req.PaperURL,
		Budget:      req.Budget,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	lastSeq := entry.Sequence

	lockTx, err := o.ledger.Lock(ctx, o.infra.TreasuryAccount, o.infra.Asset, o.infra.EscrowAccount, req.Budget)
	if err != nil {
		return fmt.Errorf("escrow lock: %w", err)
	}

	entry, err = o.appendRecord(ctx, record.EscrowLock{
		Envelope:      o.envelope(record.TypeEscrowLock, requestID, o.cfg.Sender),
		EscrowAccount: o.infra.EscrowAccount,
		Asset:         o.infra.Asset,
		Amount:        req.Budget,
		TxID:          lockTx,
	})
	if err != nil {
		return err
	}
	lastSeq = entry.Sequence
	o.emitEscrow()

	// BIDDING: wait for one bid per role, posted autonomously.
	o.transition(ctx, StateBidding)

	bidMatches, err := o.poller.Poll(ctx, Predicate{
		Type:      record.TypeBid,
		RequestID: requestID,
		AfterSeq:  lastSeq,
	}, 2, o.cfg.BidTimeout)
	if err != nil {
		return fmt.Errorf("bidding poll: %w", err)
	}

	var bids []record.Bid
	for _, m := range bidMatches {
		var bid record.Bid
		if err := m.Message.Decode(&bid); err != nil {
			o.logger.Warn(ctx, "skipping undecodable bid", zap.Uint64("seq", m.Entry.Sequence), zap.Error(err))
			continue
		}
		if m.Entry.Sequence > lastSeq {
			lastSeq = m.Entry.Sequence
		}
		bids = append(bids, bid)
		o.emitObserved(m)
	}
	o.updateSession(func(s *Session) { s.Bids = append(s.Bids, bids...) })

	// AWAITING_BID_APPROVAL: suspend until the requester decides. The
	// wait is armed before the state becomes visible so a fast approver
	// cannot race the rendezvous.
	bidCh, err := o.bridge.ExpectBidApproval()
	if err != nil {
		return fmt.Errorf("arm bid approval: %w", err)
	}
	o.transition(ctx, StateAwaitingBidApproval)
	o.sink.Emit(Event{Kind: EventAwaitingBidApproval, Data: AwaitingBidApproval{Bids: bids}})

	var approval BidApproval
	select {
	case approval = <-bidCh:
	case <-ctx.Done():
		o.bridge.CancelBidApproval()
		return ctx.Err()
	}

	for _, role := range record.Roles() {
		account, price := approval.For(role)
		entry, err = o.appendRecord(ctx, record.BidAccepted{
			Envelope:      o.envelope(record.TypeBidAccepted, requestID, o.cfg.Requester),
			BidderAccount: account,
			Role:          role,
			Price:         price,
		})
		if err != nil {
			return err
		}
		lastSeq = entry.Sequence

		alloc := &Allocation{Account: account, Price: price}
		o.updateSession(func(s *Session) {
			if role == record.RoleAnalyst {
				s.AcceptedAnalyst = alloc
			} else {
				s.AcceptedArchitect = alloc
			}
		})
	}

	// ANALYST_WORKING then ARCHITECT_WORKING: one deliverable per role.
	// A timeout leaves that role's deliverable absent; the session
	// carries forward regardless.
	for _, role := range record.Roles() {
		o.transition(ctx, workingState(role))
		o.sink.Emit(Event{Kind: EventAgentStatus, Data: AgentStatus{Role: role, Status: "working"}})

		workMatches, err := o.poller.Poll(ctx, Predicate{
			Type:      record.TypeDeliverable,
			Role:      role,
			RequestID: requestID,
			AfterSeq:  lastSeq,
		}, 1, o.cfg.WorkTimeout)
		if err != nil {
			return fmt.Errorf("%s deliverable poll: %w", role, err)
		}

		if len(workMatches) == 0 {
			o.logger.Warn(ctx, "no deliverable before timeout", zap.String("role", string(role)))
			o.sink.Emit(Event{Kind: EventAgentStatus, Data: AgentStatus{Role: role, Status: "timeout"}})
			continue
		}

		m := workMatches[0]
		var deliverable record.Deliverable
		if err := m.Message.Decode(&deliverable); err != nil {
			o.logger.Warn(ctx, "skipping undecodable deliverable", zap.Uint64("seq", m.Entry.Sequence), zap.Error(err))
			o.sink.Emit(Event{Kind: EventAgentStatus, Data: AgentStatus{Role: role, Status: "timeout"}})
			continue
		}
		if m.Entry.Sequence > lastSeq {
			lastSeq = m.Entry.Sequence
		}
		o.updateSession(func(s *Session) {
			if role == record.RoleAnalyst {
				s.AnalystDeliverable = &deliverable
			} else {
				s.ArchitectDeliverable = &deliverable
			}
		})
		o.emitObserved(m)
		o.sink.Emit(Event{Kind: EventAgentStatus, Data: AgentStatus{Role: role, Status: "delivered"}})
	}

	// AWAITING_REVIEW: suspend until the requester reviews what arrived
	// (possibly nothing).
	reviewCh, err := o.bridge.ExpectReview()
	if err != nil {
		return fmt.Errorf("arm review: %w", err)
	}
	o.transition(ctx, StateAwaitingReview)
	// A concurrent Reset can discard the session the moment the state
	// becomes visible.
	sess := o.Session()
	if sess == nil {
		o.bridge.CancelReview()
		return context.Canceled
	}
	o.sink.Emit(Event{Kind: EventAwaitingReview, Data: AwaitingReview{
		Analyst:   sess.AnalystDeliverable,
		Architect: sess.ArchitectDeliverable,
	}})

	var review ClientReview
	select {
	case review = <-reviewCh:
	case <-ctx.Done():
		o.bridge.CancelReview()
		return ctx.Err()
	}

	for _, role := range record.Roles() {
		rr := review.For(role)
		rec := record.ClientReview{
			Envelope:      o.envelope(record.TypeClientReview, requestID, o.cfg.Requester),
			TargetRole:    role,
			TargetAccount: o.roleAccount(role),
			Approved:      rr.Approved,
			Score:         rr.Score,
			Feedback:      rr.Feedback,
		}
		if _, err = o.appendRecord(ctx, rec); err != nil {
			return err
		}
		o.updateSession(func(s *Session) { s.Reviews = append(s.Reviews, rec) })
	}

	o.recordReputation(ctx, requestID, review)

	// RELEASING: pay each approved role its accepted allocation. An
	// unapproved role's allocation stays locked; there is no refund
	// path here.
	o.transition(ctx, StateReleasing)

	for _, role := range record.Roles() {
		rr := review.For(role)
		alloc := o.allocation(role)
		if !rr.Approved || alloc == nil || alloc.Price <= 0 {
			continue
		}

		txID, err := o.ledger.Release(ctx, o.infra.EscrowAccount, o.infra.Asset, alloc.Account, alloc.Price)
		if err != nil {
			return fmt.Errorf("escrow release for %s: %w", role, err)
		}

		rec := record.EscrowRelease{
			Envelope:  o.envelope(record.TypeEscrowRelease, requestID, o.cfg.Sender),
			ToAccount: alloc.Account,
			Role:      role,
			Amount:    alloc.Price,
			TxID:      txID,
		}
		if _, err = o.appendRecord(ctx, rec); err != nil {
			return err
		}
		o.updateSession(func(s *Session) {
			s.EscrowReleased += alloc.Price
			s.Releases = append(s.Releases, rec)
		})
	}
	o.emitEscrow()

	select {
	case <-time.After(o.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	o.emitBalances(ctx)

	// COMPLETE.
	o.transition(ctx, StateComplete)

	if _, err = o.appendRecord(ctx, record.CourseComplete{
		Envelope:    o.envelope(record.TypeCourseComplete, requestID, o.cfg.Sender),
		CourseTitle: "Course from: " + req.PaperURL,
		Modules:     []string{},
	}); err != nil {
		return err
	}

	for _, role := range record.Roles() {
		o.sink.Emit(Event{Kind: EventAgentStatus, Data: AgentStatus{Role: role, Status: "done"}})
	}
	return nil
}

// transition advances the state machine, emitting the state-changed event
// before any work in the new state begins.
func (o *Orchestrator) transition(ctx context.Context, next State) {
	o.mu.Lock()
	o.state = next
	if o.session != nil {
		o.session.State = next
	}
	o.mu.Unlock()

	o.sink.Emit(Event{Kind: EventState, Data: StateChange{State: next}})
	o.logger.Info(ctx, "state changed", zap.String("state", string(next)))
}

// updateSession mutates the session under lock.
func (o *Orchestrator) updateSession(fn func(*Session)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		fn(o.session)
	}
}

// allocation returns a copy of the approved allocation for a role.
func (o *Orchestrator) allocation(role record.Role) *Allocation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	alloc := o.session.Accepted(role)
	if alloc == nil {
		return nil
	}
	a := *alloc
	return &a
}

// roleAccount is the account a role's review and payout target: the
// approved bidder account when one exists, else the provisioned default.
func (o *Orchestrator) roleAccount(role record.Role) string {
	if alloc := o.allocation(role); alloc != nil && alloc.Account != "" {
		return alloc.Account
	}
	if role == record.RoleAnalyst {
		return o.infra.AnalystAccount
	}
	return o.infra.ArchitectAccount
}

func (o *Orchestrator) envelope(typ record.Type, requestID, sender string) record.Envelope {
	return record.Envelope{
		Type:      typ,
		RequestID: requestID,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
}

// appendRecord writes a record to the log. Append failures are fatal to
// the run: the log is the trust boundary with every other participant.
func (o *Orchestrator) appendRecord(ctx context.Context, v any) (chainlog.Entry, error) {
	payload, err := record.Marshal(v)
	if err != nil {
		return chainlog.Entry{}, err
	}

	entry, err := o.log.Append(ctx, payload)
	if err != nil {
		return chainlog.Entry{}, fmt.Errorf("log append: %w", err)
	}

	msg, perr := record.Parse(payload)
	if perr == nil {
		o.sink.Emit(Event{Kind: EventLogRecord, Data: LogRecord{
			Sequence:  entry.Sequence,
			Type:      msg.Type,
			Sender:    msg.Sender,
			Role:      msg.Role,
			Timestamp: entry.Timestamp,
			Payload:   msg.Raw(),
		}})
		o.logger.Debug(ctx, "record appended",
			zap.Uint64("seq", entry.Sequence),
			zap.String("type", string(msg.Type)))
	}
	return entry, nil
}

// emitObserved mirrors a record the poller matched to the event sink.
func (o *Orchestrator) emitObserved(m Match) {
	o.sink.Emit(Event{Kind: EventLogRecord, Data: LogRecord{
		Sequence:  m.Entry.Sequence,
		Type:      m.Message.Type,
		Sender:    m.Message.Sender,
		Role:      m.Message.Role,
		Timestamp: m.Entry.Timestamp,
		Payload:   m.Message.Raw(),
	}})
}

func (o *Orchestrator) emitEscrow() {
	o.mu.Lock()
	locked, released := int64(0), int64(0)
	if o.session != nil {
		locked = o.session.EscrowLocked
		released = o.session.EscrowReleased
	}
	o.mu.Unlock()

	o.sink.Emit(Event{Kind: EventEscrow, Data: EscrowSnapshot{
		Locked:    locked,
		Released:  released,
		Remaining: locked - released,
	}})
}

// emitBalances reads settled balances for observability. Failures here are
// logged and skipped; the snapshot is advisory.
func (o *Orchestrator) emitBalances(ctx context.Context) {
	accounts := map[string]string{
		"treasury":  o.infra.TreasuryAccount,
		"escrow":    o.infra.EscrowAccount,
		"analyst":   o.roleAccount(record.RoleAnalyst),
		"architect": o.roleAccount(record.RoleArchitect),
	}

	balances := make(map[string]int64, len(accounts))
	for name, account := range accounts {
		bal, err := o.ledger.BalanceOf(ctx, account, o.infra.Asset)
		if err != nil {
			o.logger.Warn(ctx, "balance query failed",
				zap.String("account", account), zap.Error(err))
			continue
		}
		balances[name] = bal
	}

	o.sink.Emit(Event{Kind: EventBalances, Data: BalanceSnapshot{
		Asset:    o.infra.Asset,
		Balances: balances,
	}})
}

// registerAgents records both agent identities with the reputation
// registry. Strictly best-effort: failures are events, never errors, and
// one role's failure does not stop the other's.
func (o *Orchestrator) registerAgents(ctx context.Context) {
	if o.registrar == nil {
		return
	}

	accounts := map[record.Role]string{
		record.RoleAnalyst:   o.infra.AnalystAccount,
		record.RoleArchitect: o.infra.ArchitectAccount,
	}

	for _, role := range record.Roles() {
		if _, done := o.agents[role]; done {
			continue
		}
		reg, err := o.registrar.RegisterAgent(ctx, "marketd-"+string(role), accounts[role], role)
		if err != nil {
			o.logger.Warn(ctx, "agent registration failed",
				zap.String("role", string(role)), zap.Error(err))
			o.sink.Emit(Event{Kind: EventReputation, Data: ReputationEvent{
				Action: "registered", Role: role, Err: err.Error(),
			}})
			continue
		}
		o.agents[role] = reg
		o.sink.Emit(Event{Kind: EventReputation, Data: ReputationEvent{
			Action: "registered", Role: role, AgentID: reg.AgentID, TxHash: reg.TxHash,
		}})
	}
}

// recordReputation records scored feedback per role. Each call is wrapped
// independently so one role's registry failure never blocks the other's
// recording, and never aborts the session.
func (o *Orchestrator) recordReputation(ctx context.Context, requestID string, review ClientReview) {
	if o.registrar == nil {
		return
	}

	for _, role := range record.Roles() {
		reg, ok := o.agents[role]
		if !ok {
			continue
		}
		rr := review.For(role)
		receipt, err := o.registrar.RecordReputation(ctx, reg.AgentID, rr.Score, rr.Feedback, reputation.Context{
			RequestID: requestID,
			Role:      role,
		})
		if err != nil {
			o.logger.Warn(ctx, "reputation recording failed",
				zap.String("role", string(role)), zap.Error(err))
			o.sink.Emit(Event{Kind: EventReputation, Data: ReputationEvent{
				Action: "feedback_recorded", Role: role, AgentID: reg.AgentID, Err: err.Error(),
			}})
			continue
		}
		o.sink.Emit(Event{Kind: EventReputation, Data: ReputationEvent{
			Action: "feedback_recorded", Role: role, AgentID: reg.AgentID,
			Score: rr.Score, TxHash: receipt.TxHash,
		}})
	}
}

// workingState maps a role to its work-phase state.
func workingState(role record.Role) State {
	if role == record.RoleAnalyst {
		return StateAnalystWorking
	}
	return StateArchitectWorking
}
