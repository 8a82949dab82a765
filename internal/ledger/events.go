package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

// Events returns up to limit persisted notifications with Seq > after.
func (l *Ledger) Events(ctx context.Context, after uint64, limit int) (_ []credential.Event, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.events")
	defer func() { op.End(err) }()

	events, err := l.backend.Events(ctx, after, clampLimit(limit, defaultEventPage, maxEventPage))
	if err != nil {
		return nil, skerrors.Wrap(skerrors.CodeInternal, "read events", err)
	}
	return events, nil
}

// Watch streams notifications with Seq > after that match expression, first
// replaying the persisted log and then following live commits. Delivery is
// in sequence order without gaps or duplicates until the subscription ends.
// opts overrides Options.Watch when non-nil.
func (l *Ledger) Watch(ctx context.Context, after uint64, expression string, opts *SubscriptionOptions) (Subscription, error) {
	var prg cel.Program
	if expression != "" {
		var err error
		if prg, err = l.subs.eval.Compile(ctx, expression); err != nil {
			return nil, skerrors.Wrap(skerrors.CodeInvalidInput, "filter", err)
		}
	}
	if opts == nil {
		o := l.watch
		opts = &o
	}

	wctx, cancel := context.WithCancel(ctx)

	// Holding the read lock keeps commits out between reading lastSeq and
	// registering, so every later event reaches inner.
	l.mu.RLock()
	cur := l.st.lastSeq
	inner, err := l.subs.Subscribe(wctx, expression, cur, opts)
	l.mu.RUnlock()
	if err != nil {
		cancel()
		return nil, err
	}

	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	w := &watcher{
		inner:  inner,
		out:    make(chan *credential.Event, size),
		cancel: cancel,
	}
	go w.run(wctx, l, prg, after, cur)
	return w, nil
}

// watcher joins a replay of the persisted log onto a live subscription.
type watcher struct {
	inner  Subscription
	out    chan *credential.Event
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (w *watcher) ID() string                        { return w.inner.ID() }
func (w *watcher) Events() <-chan *credential.Event { return w.out }
func (w *watcher) Cancel()                           { w.cancel() }
func (w *watcher) Health() SubscriptionHealth        { return w.inner.Health() }

func (w *watcher) Err() error {
	w.mu.Lock()
	err := w.err
	w.mu.Unlock()
	if err != nil {
		return err
	}
	return w.inner.Err()
}

func (w *watcher) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *watcher) run(ctx context.Context, l *Ledger, prg cel.Program, after, cur uint64) {
	defer close(w.out)
	defer w.cancel()

	if err := w.replay(ctx, l, prg, after, cur); err != nil {
		if !errors.Is(err, context.Canceled) {
			w.fail(err)
		}
		return
	}

	for e := range w.inner.Events() {
		if e.Seq <= after {
			continue
		}
		if !w.send(ctx, e) {
			return
		}
	}
}

// replay sends the matching persisted events in (after, cur].
func (w *watcher) replay(ctx context.Context, l *Ledger, prg cel.Program, after, cur uint64) error {
	next := after
	for next < cur {
		page, err := l.backend.Events(ctx, next, maxEventPage)
		if err != nil {
			return fmt.Errorf("replay events after %d: %w", next, err)
		}
		if len(page) == 0 {
			return fmt.Errorf("replay events after %d: log ends before %d", next, cur)
		}
		for i := range page {
			e := &page[i]
			if e.Seq > cur {
				return nil
			}
			next = e.Seq
			if prg != nil {
				ok, err := l.subs.eval.Eval(ctx, prg, e.Attributes())
				if err != nil || !ok {
					continue
				}
			}
			if !w.send(ctx, e) {
				return context.Canceled
			}
		}
	}
	return nil
}

func (w *watcher) send(ctx context.Context, e *credential.Event) bool {
	select {
	case w.out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
