package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	celeval "github.com/MasterChonk/SkillToken-V2/internal/ledger/cel"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

func newTestManager(t *testing.T, cfg SubscriptionConfig, m *observability.Metrics) *subscriptionManager {
	return newLoggedTestManager(t, cfg, m, logging.Discard())
}

func newLoggedTestManager(t *testing.T, cfg SubscriptionConfig, m *observability.Metrics, log *logging.Logger) *subscriptionManager {
	t.Helper()
	eval, err := celeval.NewEvaluator(celeval.VarEvent)
	if err != nil {
		t.Fatal(err)
	}
	mgr := newSubscriptionManager(eval, cfg, m, log)
	t.Cleanup(mgr.Close)
	return mgr
}

func ev(seq uint64, typ credential.EventType) *credential.Event {
	return &credential.Event{Seq: seq, Type: typ}
}

func TestParseBackpressure(t *testing.T) {
	for in, want := range map[string]BackpressurePolicy{
		"":           BackpressureDrop,
		"drop":       BackpressureDrop,
		"block":      BackpressureBlock,
		"disconnect": BackpressureDisconnect,
	} {
		got, err := ParseBackpressure(in)
		if err != nil || got != want {
			t.Errorf("ParseBackpressure(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseBackpressure("yolo"); err == nil {
		t.Error("expected error")
	}
}

func TestSubscriptionOrdersOutOfOrderEvents(t *testing.T) {
	// Several fan-out workers may pick events up in any order.
	mgr := newTestManager(t, SubscriptionConfig{WorkerCount: 4}, nil)
	sub, err := mgr.Subscribe(context.Background(), "", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	const n = 200
	for seq := uint64(n); seq >= 1; seq-- {
		mgr.dispatch(ev(seq, credential.EventCourseRegistered))
	}
	for want := uint64(1); want <= n; want++ {
		if e := recv(t, sub); e.Seq != want {
			t.Fatalf("seq = %d, want %d", e.Seq, want)
		}
	}
	if h := sub.Health(); h.LastSeq != n || h.Held != 0 || h.TotalDelivered != n {
		t.Errorf("health = %+v", h)
	}
}

func TestSubscriptionFilterSkipsButAdvances(t *testing.T) {
	mgr := newTestManager(t, SubscriptionConfig{}, nil)
	sub, err := mgr.Subscribe(context.Background(), `event.type == "CertificateIssued"`, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	mgr.Notify(ev(1, credential.EventCourseRegistered))
	mgr.Notify(ev(2, credential.EventCertificateIssued))
	mgr.Notify(ev(3, credential.EventRoleGranted))
	mgr.Notify(ev(4, credential.EventCertificateIssued))

	if e := recv(t, sub); e.Seq != 2 {
		t.Fatalf("seq = %d, want 2", e.Seq)
	}
	if e := recv(t, sub); e.Seq != 4 {
		t.Fatalf("seq = %d, want 4", e.Seq)
	}
}

func TestSubscriptionDisconnectPolicy(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(slog.New(slog.NewTextHandler(&buf, nil))).WithComponent("subscriptions")
	mgr := newLoggedTestManager(t, SubscriptionConfig{WorkerCount: 1}, nil, log)
	sub, err := mgr.Subscribe(context.Background(), "", 0, &SubscriptionOptions{
		BufferSize:         1,
		BackpressurePolicy: BackpressureDisconnect,
	})
	if err != nil {
		t.Fatal(err)
	}

	mgr.dispatch(ev(1, credential.EventCourseRegistered))
	mgr.dispatch(ev(2, credential.EventCourseRegistered))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				if sub.Err() == nil {
					t.Fatal("disconnected subscription has no error")
				}
				out := buf.String()
				if !strings.Contains(out, "disconnecting slow subscriber") || !strings.Contains(out, "component=subscriptions") {
					t.Fatalf("disconnect not logged through the ledger logger: %q", out)
				}
				return
			}
		case <-deadline:
			t.Fatal("subscriber was not disconnected")
		}
	}
}

func TestSubscriptionHeldLimit(t *testing.T) {
	mgr := newTestManager(t, SubscriptionConfig{MaxHeld: 3}, nil)
	sub, err := mgr.Subscribe(context.Background(), "", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for seq := uint64(2); seq <= 5; seq++ {
		mgr.dispatch(ev(seq, credential.EventCourseRegistered))
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("event delivered across a gap")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber holding too many events was not disconnected")
	}
	if sub.Err() == nil {
		t.Error("expected disconnect error")
	}
}

func TestSubscriptionGaugeAndHealth(t *testing.T) {
	m := observability.NewMetrics()
	mgr := newTestManager(t, SubscriptionConfig{}, m)

	a, _ := mgr.Subscribe(context.Background(), "", 0, nil)
	b, _ := mgr.Subscribe(context.Background(), "", 0, nil)
	if got := testutil.ToFloat64(m.Subscriptions); got != 2 {
		t.Errorf("subscriptions gauge = %v, want 2", got)
	}
	if h := mgr.Health(); len(h) != 2 || h[0].ID > h[1].ID {
		t.Errorf("health = %+v", h)
	}

	a.Cancel()
	b.Cancel()
	deadline := time.Now().Add(2 * time.Second)
	for mgr.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Len = %d after cancel", mgr.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(m.Subscriptions); got != 0 {
		t.Errorf("subscriptions gauge = %v, want 0", got)
	}
}

func TestSubscribeInvalidExpression(t *testing.T) {
	mgr := newTestManager(t, SubscriptionConfig{}, nil)
	if _, err := mgr.Subscribe(context.Background(), "event.", 0, nil); err == nil {
		t.Fatal("expected compile error")
	}
}
