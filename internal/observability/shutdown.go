package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Shutdown stages registered by the skilltoken server. Stages drain in
// reverse registration order, so the gRPC listener stops before the archiver
// flushes and the ledger closes last.
const (
	StageLedger   = "ledger"
	StageArchiver = "archiver"
	StageGRPC     = "grpc-server"
	StageMetrics  = "metrics-server"
	StageTracer   = "tracer"
)

// ShutdownCoordinator runs named shutdown stages once, newest first.
type ShutdownCoordinator struct {
	mu     sync.Mutex
	stages []stage
	done   bool
	log    *slog.Logger
}

type stage struct {
	name string
	fn   func(context.Context) error
}

// Register adds a stage. Registering after Shutdown has run is a no-op.
func (s *ShutdownCoordinator) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.stages = append(s.stages, stage{name: name, fn: fn})
}

// Stages returns the registered stage names in the order Shutdown runs them.
func (s *ShutdownCoordinator) Stages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.stages))
	for i := len(s.stages) - 1; i >= 0; i-- {
		names = append(names, s.stages[i].name)
	}
	return names
}

// Shutdown drains every stage even when an earlier one fails and joins the
// failures. Later calls return nil.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	stages := s.stages
	s.stages = nil
	log := s.log
	s.mu.Unlock()

	if log == nil {
		log = slog.Default()
	}

	var errs []error
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		start := time.Now()
		err := st.fn(ctx)
		elapsed := time.Since(start)
		if err != nil {
			log.Error("shutdown stage failed", "stage", st.name, "elapsed", elapsed, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		log.Info("shutdown stage done", "stage", st.name, "elapsed", elapsed)
	}
	return errors.Join(errs...)
}
