package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	celeval "github.com/MasterChonk/SkillToken-V2/internal/ledger/cel"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

const (
	defaultBufferSize  = 256
	defaultIntakeSize  = 4096
	defaultWorkerCount = 2
	defaultMaxDrops    = 1000
	defaultMaxHeld     = 4096
)

// BackpressurePolicy controls behavior when a subscription's buffer is full.
type BackpressurePolicy int

const (
	// BackpressureDrop drops events when the buffer is full.
	BackpressureDrop BackpressurePolicy = iota

	// BackpressureBlock blocks the dispatch goroutine for up to BlockTimeout.
	// If the timeout expires, the event is dropped and counted.
	BackpressureBlock

	// BackpressureDisconnect disconnects the subscriber on first drop.
	BackpressureDisconnect
)

// ParseBackpressure maps a config string to a policy. Empty means drop.
func ParseBackpressure(s string) (BackpressurePolicy, error) {
	switch s {
	case "", "drop":
		return BackpressureDrop, nil
	case "block":
		return BackpressureBlock, nil
	case "disconnect":
		return BackpressureDisconnect, nil
	}
	return 0, fmt.Errorf("unknown backpressure policy %q", s)
}

// SubscriptionConfig configures the subscription manager.
type SubscriptionConfig struct {
	IntakeBufferSize    int // Size of the intake channel. Default 4096.
	WorkerCount         int // Number of fan-out goroutines. Default 2.
	MaxConsecutiveDrops int // Drops before disconnect. Default 1000.
	MaxHeld             int // Out-of-order events held per subscriber before disconnect. Default 4096.
}

// SubscriptionOptions configures a single subscription.
type SubscriptionOptions struct {
	BufferSize         int                // Channel buffer size. Default 256.
	BackpressurePolicy BackpressurePolicy // Default BackpressureDrop.
	BlockTimeout       time.Duration      // For BackpressureBlock. Default 1s.
}

// SubscriptionHealth contains real-time health metrics for a subscription.
type SubscriptionHealth struct {
	ID               string
	LastSeq          uint64
	TotalDelivered   int64
	TotalDropped     int64
	ConsecutiveDrops int64
	Held             int
	BufferUsed       int
	BufferCapacity   int
	Lagging          bool
}

// Subscription is a live, filtered view of the notification log.
type Subscription interface {
	ID() string
	Events() <-chan *credential.Event
	Cancel()
	// Err reports why the subscription ended early, or nil.
	Err() error
	Health() SubscriptionHealth
}

type subscription struct {
	id         string
	expression string
	program    cel.Program // nil matches everything
	events     chan *credential.Event
	cancel     context.CancelFunc
	err        error
	errMu      sync.RWMutex
	done       chan struct{}
	opts       SubscriptionOptions

	totalDelivered   atomic.Int64
	totalDropped     atomic.Int64
	consecutiveDrops atomic.Int64

	// Events are released strictly in sequence order. fifoMu also guards
	// sends on events so the channel is never closed mid-send.
	fifoMu  sync.Mutex
	lastSeq uint64
	held    []*credential.Event
	closed  bool
	ending  bool
}

func newSubscription(ctx context.Context, expression string, program cel.Program, startSeq uint64, opts SubscriptionOptions) *subscription {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		id:         uuid.NewString(),
		expression: expression,
		program:    program,
		events:     make(chan *credential.Event, opts.BufferSize),
		cancel:     cancel,
		done:       make(chan struct{}),
		opts:       opts,
		lastSeq:    startSeq,
	}

	go func() {
		<-ctx.Done()
		s.fifoMu.Lock()
		s.closed = true
		s.held = nil
		close(s.events)
		s.fifoMu.Unlock()
		close(s.done)
	}()

	return s
}

func (s *subscription) ID() string                        { return s.id }
func (s *subscription) Events() <-chan *credential.Event { return s.events }
func (s *subscription) Cancel()                           { s.cancel() }

func (s *subscription) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

func (s *subscription) Health() SubscriptionHealth {
	s.fifoMu.Lock()
	lastSeq, held := s.lastSeq, len(s.held)
	s.fifoMu.Unlock()

	return SubscriptionHealth{
		ID:               s.id,
		LastSeq:          lastSeq,
		TotalDelivered:   s.totalDelivered.Load(),
		TotalDropped:     s.totalDropped.Load(),
		ConsecutiveDrops: s.consecutiveDrops.Load(),
		Held:             held,
		BufferUsed:       len(s.events),
		BufferCapacity:   cap(s.events),
		Lagging:          len(s.events) > cap(s.events)*80/100,
	}
}

type subscriptionManager struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	eval    *celeval.Evaluator
	metrics *observability.Metrics
	log     *logging.Logger
	closed  bool

	intake chan *credential.Event
	wg     sync.WaitGroup
	stop   chan struct{}
	config SubscriptionConfig
}

func newSubscriptionManager(eval *celeval.Evaluator, cfg SubscriptionConfig, metrics *observability.Metrics, log *logging.Logger) *subscriptionManager {
	if cfg.IntakeBufferSize <= 0 {
		cfg.IntakeBufferSize = defaultIntakeSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.MaxConsecutiveDrops <= 0 {
		cfg.MaxConsecutiveDrops = defaultMaxDrops
	}
	if cfg.MaxHeld <= 0 {
		cfg.MaxHeld = defaultMaxHeld
	}

	m := &subscriptionManager{
		subs:    make(map[string]*subscription),
		eval:    eval,
		metrics: metrics,
		log:     log,
		intake:  make(chan *credential.Event, cfg.IntakeBufferSize),
		stop:    make(chan struct{}),
		config:  cfg,
	}

	for range cfg.WorkerCount {
		m.wg.Add(1)
		go m.fanoutWorker()
	}

	return m
}

func (m *subscriptionManager) fanoutWorker() {
	defer m.wg.Done()
	for {
		select {
		case e := <-m.intake:
			m.dispatch(e)
		case <-m.stop:
			return
		}
	}
}

// dispatch hands e to every subscriber. Each subscriber sees every sequence
// number so its hold-back queue can advance; the filter runs on release.
func (m *subscriptionManager) dispatch(e *credential.Event) {
	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.dispatchToSub(sub, e)
	}
}

func (m *subscriptionManager) dispatchToSub(sub *subscription, e *credential.Event) {
	sub.fifoMu.Lock()
	defer sub.fifoMu.Unlock()

	if sub.closed || sub.ending || e.Seq <= sub.lastSeq {
		return
	}

	if e.Seq != sub.lastSeq+1 {
		i, found := slices.BinarySearchFunc(sub.held, e.Seq, func(h *credential.Event, seq uint64) int {
			return cmp.Compare(h.Seq, seq)
		})
		if !found {
			sub.held = slices.Insert(sub.held, i, e)
		}
		if len(sub.held) > m.config.MaxHeld {
			m.disconnectLocked(sub, fmt.Sprintf("more than %d events held out of order", m.config.MaxHeld))
		}
		return
	}

	m.releaseLocked(sub, e)
	for len(sub.held) > 0 && sub.held[0].Seq == sub.lastSeq+1 && !sub.ending {
		next := sub.held[0]
		sub.held = sub.held[1:]
		m.releaseLocked(sub, next)
	}
}

// releaseLocked advances the subscriber past e and delivers it when it
// matches the filter. Caller holds sub.fifoMu.
func (m *subscriptionManager) releaseLocked(sub *subscription, e *credential.Event) {
	sub.lastSeq = e.Seq
	if sub.program != nil {
		match, err := m.eval.Eval(context.Background(), sub.program, e.Attributes())
		if err != nil {
			m.log.Debug("subscription filter evaluation failed",
				"subscription_id", sub.id, "seq", e.Seq, "error", err)
			return
		}
		if !match {
			return
		}
	}
	m.deliverLocked(sub, e)
}

func (m *subscriptionManager) deliverLocked(sub *subscription, e *credential.Event) {
	switch sub.opts.BackpressurePolicy {
	case BackpressureBlock:
		timer := time.NewTimer(sub.opts.BlockTimeout)
		defer timer.Stop()
		select {
		case sub.events <- e:
			sub.consecutiveDrops.Store(0)
			sub.totalDelivered.Add(1)
		case <-timer.C:
			sub.totalDropped.Add(1)
			drops := sub.consecutiveDrops.Add(1)
			m.log.Warn("subscription buffer full after block timeout, event dropped",
				"subscription_id", sub.id, "seq", e.Seq, "consecutive_drops", drops)
			if drops >= int64(m.config.MaxConsecutiveDrops) {
				m.disconnectLocked(sub, fmt.Sprintf("exceeded %d consecutive drops", m.config.MaxConsecutiveDrops))
			}
		}

	case BackpressureDisconnect:
		select {
		case sub.events <- e:
			sub.totalDelivered.Add(1)
		default:
			sub.totalDropped.Add(1)
			m.disconnectLocked(sub, "buffer full")
		}

	default: // BackpressureDrop
		select {
		case sub.events <- e:
			sub.consecutiveDrops.Store(0)
			sub.totalDelivered.Add(1)
		default:
			sub.totalDropped.Add(1)
			drops := sub.consecutiveDrops.Add(1)
			if drops >= int64(m.config.MaxConsecutiveDrops) {
				m.disconnectLocked(sub, fmt.Sprintf("exceeded %d consecutive drops", m.config.MaxConsecutiveDrops))
			} else {
				m.log.Warn("subscription buffer full, event dropped",
					"subscription_id", sub.id,
					"seq", e.Seq,
					"consecutive_drops", drops)
			}
		}
	}
}

// disconnectLocked ends a subscription from inside dispatch. Caller holds
// sub.fifoMu; the channel is closed once it is released.
func (m *subscriptionManager) disconnectLocked(sub *subscription, reason string) {
	m.log.Warn("disconnecting slow subscriber",
		"subscription_id", sub.id, "reason", reason,
		"total_delivered", sub.totalDelivered.Load(),
		"total_dropped", sub.totalDropped.Load())
	sub.ending = true
	sub.errMu.Lock()
	sub.err = fmt.Errorf("disconnected: %s", reason)
	sub.errMu.Unlock()
	sub.Cancel()
}

// Subscribe registers a subscriber that receives events with Seq > startSeq.
// An empty expression matches every event.
func (m *subscriptionManager) Subscribe(ctx context.Context, expression string, startSeq uint64, opts *SubscriptionOptions) (Subscription, error) {
	var program cel.Program
	if expression != "" {
		var err error
		if program, err = m.eval.Compile(ctx, expression); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSubscriptionClosed
	}

	if opts == nil {
		opts = &SubscriptionOptions{}
	}

	sub := newSubscription(ctx, expression, program, startSeq, *opts)
	m.subs[sub.id] = sub
	m.setGauge(len(m.subs))

	m.log.Info("subscription registered",
		"subscription_id", sub.id,
		"start_seq", startSeq,
		"active_subscriptions", len(m.subs),
	)

	go func() {
		<-sub.done
		m.mu.Lock()
		delete(m.subs, sub.id)
		remaining := len(m.subs)
		if !m.closed {
			m.setGauge(remaining)
		}
		m.mu.Unlock()
		m.log.Info("subscription removed",
			"subscription_id", sub.id,
			"remaining_subscriptions", remaining,
		)
	}()

	return sub, nil
}

func (m *subscriptionManager) setGauge(n int) {
	if m.metrics != nil {
		m.metrics.Subscriptions.Set(float64(n))
	}
}

// Notify enqueues e for fan-out. Subscribers need every sequence number, so
// a full intake blocks the caller instead of dropping.
func (m *subscriptionManager) Notify(e *credential.Event) {
	select {
	case m.intake <- e:
		return
	default:
	}

	m.log.Warn("subscription intake buffer full, publisher waiting", "seq", e.Seq)
	select {
	case m.intake <- e:
	case <-m.stop:
	}
}

func (m *subscriptionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, sub := range m.subs {
		sub.Cancel()
	}
	m.subs = make(map[string]*subscription)
	m.setGauge(0)
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
}

func (m *subscriptionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Health returns per-subscription health ordered by id.
func (m *subscriptionManager) Health() []SubscriptionHealth {
	m.mu.RLock()
	out := make([]SubscriptionHealth, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub.Health())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b SubscriptionHealth) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
