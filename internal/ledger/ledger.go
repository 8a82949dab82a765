package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	celeval "github.com/MasterChonk/SkillToken-V2/internal/ledger/cel"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// Options configures a Ledger.
type Options struct {
	// Admin is the bootstrap account allowed to grant roles. Required.
	Admin   credential.Account
	Metrics *observability.Metrics
	Logger  *logging.Logger
	// Now overrides the clock, mainly for tests. Times are stored in UTC at
	// millisecond precision whatever the clock returns.
	Now func() time.Time

	Subscriptions SubscriptionConfig
	// Watch holds the defaults for subscriptions opened through Watch.
	Watch SubscriptionOptions
}

// Ledger is the registry core. All methods are safe for concurrent use.
type Ledger struct {
	mu sync.RWMutex
	st *state

	backend  physical.Backend
	admin    credential.Account
	metrics  *observability.Metrics
	log      *logging.Logger
	now      func() time.Time
	certEval *celeval.Evaluator
	subs     *subscriptionManager
	watch    SubscriptionOptions
}

// Open loads the ledger state from backend. The ledger owns backend from
// here on and closes it in Close.
func Open(ctx context.Context, backend physical.Backend, opts Options) (_ *Ledger, err error) {
	op, ctx := observability.StartOperation(ctx, opts.Metrics, "ledger.open")
	defer func() { op.End(err) }()

	if opts.Admin.IsZero() {
		return nil, ErrNoAdmin
	}
	if err := opts.Admin.Validate(); err != nil {
		return nil, fmt.Errorf("ledger admin: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	eventEval, err := celeval.NewEvaluator(celeval.VarEvent)
	if err != nil {
		return nil, err
	}
	certEval, err := celeval.NewEvaluator(celeval.VarCertificate)
	if err != nil {
		return nil, err
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	st, err := load(snap)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		st:       st,
		backend:  backend,
		admin:    opts.Admin,
		metrics:  opts.Metrics,
		log:      opts.Logger.WithComponent("ledger"),
		now:      opts.Now,
		certEval: certEval,
		subs:     newSubscriptionManager(eventEval, opts.Subscriptions, opts.Metrics, opts.Logger.WithComponent("subscriptions")),
		watch:    opts.Watch,
	}
	l.updateGauges()

	l.log.Info("ledger opened",
		"courses", len(st.courses),
		"certificates", len(st.certs),
		"grants", len(st.grants),
		"last_seq", st.lastSeq,
	)
	return l, nil
}

// StopWatches ends every subscription and refuses new ones while leaving
// the ledger usable. Servers call it before draining so open streams finish.
func (l *Ledger) StopWatches() {
	l.subs.Close()
}

// Close stops all subscriptions and closes the backend.
func (l *Ledger) Close() error {
	l.subs.Close()
	return l.backend.Close()
}

// Admin returns the bootstrap admin account.
func (l *Ledger) Admin() credential.Account { return l.admin }

// Ping checks the storage backend. It is used as a health check.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.backend.Ping(ctx)
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

// commit accumulates the records and events of one mutation.
type commit struct {
	physical.Commit
	actor credential.Account
	at    time.Time
	next  uint64
}

// begin starts a commit. Caller holds l.mu for writing.
func (l *Ledger) begin(actor credential.Account) *commit {
	return &commit{actor: actor, at: l.timestamp(), next: l.st.lastSeq + 1}
}

func (c *commit) emit(e credential.Event) {
	e.Seq = c.next
	e.At = c.at
	e.Actor = c.actor
	c.next++
	c.Events = append(c.Events, e)
}

// apply persists c, folds it into memory and publishes its events, in that
// order. Caller holds l.mu for writing.
func (l *Ledger) apply(ctx context.Context, c *commit) error {
	if err := l.backend.Apply(ctx, &c.Commit); err != nil {
		return skerrors.Wrap(skerrors.CodeInternal, "persist commit", err)
	}
	if err := l.st.apply(&c.Commit); err != nil {
		// The backend accepted a commit memory cannot hold; state is now
		// behind storage until restart.
		return skerrors.Wrap(skerrors.CodeInternal, "apply commit", err)
	}
	l.updateGauges()

	for i := range c.Events {
		e := c.Events[i]
		if l.metrics != nil {
			l.metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()
		}
		l.subs.Notify(&e)
	}
	return nil
}

func (l *Ledger) updateGauges() {
	if l.metrics == nil {
		return
	}
	g := l.metrics.LedgerObjects
	g.WithLabelValues("courses").Set(float64(len(l.st.courses)))
	g.WithLabelValues("certificates").Set(float64(len(l.st.certs)))
	g.WithLabelValues("validated_certificates").Set(float64(l.st.validatedCount))
	g.WithLabelValues("active_grants").Set(float64(l.st.activeGrants))
	g.WithLabelValues("role_assignments").Set(float64(l.st.roleCount))
	l.metrics.EventSequence.Set(float64(l.st.lastSeq))
}

// Snapshot returns a consistent copy of the full ledger state.
func (l *Ledger) Snapshot(ctx context.Context) (snap *physical.Snapshot, err error) {
	_, span := observability.StartSpan(ctx, "ledger.snapshot")
	defer func() { observability.EndSpan(span, err) }()

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.snapshot(), nil
}

// LastSeq returns the sequence of the most recent notification.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.lastSeq
}

// Stats summarizes the ledger and its backend.
type Stats struct {
	Courses               int
	Certificates          int
	ValidatedCertificates int
	Grants                int
	ActiveGrants          int
	LastSeq               uint64
	Subscriptions         int
	Backend               *physical.Stats
}

func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	backend, err := l.backend.Stats(ctx)
	if err != nil {
		return nil, skerrors.Wrap(skerrors.CodeInternal, "backend stats", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Stats{
		Courses:               len(l.st.courses),
		Certificates:          len(l.st.certs),
		ValidatedCertificates: l.st.validatedCount,
		Grants:                len(l.st.grants),
		ActiveGrants:          l.st.activeGrants,
		LastSeq:               l.st.lastSeq,
		Subscriptions:         l.subs.Len(),
		Backend:               backend,
	}, nil
}

// SubscriptionHealth reports every live subscription.
func (l *Ledger) SubscriptionHealth() []SubscriptionHealth {
	return l.subs.Health()
}

func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}
