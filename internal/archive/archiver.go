package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

// Snapshotter is the part of the ledger the archiver reads.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*physical.Snapshot, error)
}

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	// SinkName labels the archive byte counter.
	SinkName string
	Format   Format
	Interval time.Duration
	Metrics  *observability.Metrics
	Logger   *logging.Logger
	Now      func() time.Time
}

// Archiver periodically writes ledger snapshots to a sink. A snapshot is
// only written when the ledger has changed since the previous one.
type Archiver struct {
	src  Snapshotter
	sink Sink
	cfg  ArchiverConfig
	log  *logging.Logger

	mu      sync.Mutex
	lastSeq uint64
	written bool
}

func NewArchiver(src Snapshotter, sink Sink, cfg ArchiverConfig) *Archiver {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "unknown"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(nil)
	}
	return &Archiver{
		src:  src,
		sink: sink,
		cfg:  cfg,
		log:  cfg.Logger.WithComponent("archive"),
	}
}

// ArchiveOnce writes one snapshot. It returns the object name, or "" when
// nothing changed since the last write.
func (a *Archiver) ArchiveOnce(ctx context.Context) (name string, err error) {
	op, ctx := observability.StartOperation(ctx, a.cfg.Metrics, "archive.snapshot",
		attribute.String("sink", a.cfg.SinkName))
	defer func() { op.End(err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := a.src.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if a.written && snap.LastSeq == a.lastSeq {
		return "", nil
	}

	data, err := Encode(snap, a.cfg.Format)
	if err != nil {
		return "", err
	}
	name = ObjectName(snap.LastSeq, a.cfg.Now(), a.cfg.Format)
	if err := a.sink.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}

	a.lastSeq = snap.LastSeq
	a.written = true
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.ArchiveBytes.WithLabelValues(a.cfg.SinkName).Add(float64(len(data)))
	}
	a.log.Info("snapshot archived", "object", name, "last_seq", snap.LastSeq, "bytes", len(data))
	return name, nil
}

// Run archives on every tick until ctx is done, then writes a final
// snapshot if anything changed. A zero interval only does the final write.
func (a *Archiver) Run(ctx context.Context) {
	if a.cfg.Interval > 0 {
		ticker := time.NewTicker(a.cfg.Interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if _, err := a.ArchiveOnce(ctx); err != nil {
					a.log.WithError(err).Warn("periodic archive failed")
				}
			}
		}
	} else {
		<-ctx.Done()
	}

	final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if _, err := a.ArchiveOnce(final); err != nil {
		a.log.WithError(err).Warn("final archive failed")
	}
}
