package discovery

import (
	"context"
	"time"

	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
)

// Sink receives scan results; *registry.Registry satisfies it
type Sink interface {
	Ingest(nodeID string, facts []hardware.DriveFacts) (uint64, error)
}

// Source produces drive facts; *Scanner satisfies it
type Source interface {
	Scan() ([]hardware.DriveFacts, error)
}

// Task scans immediately, then every interval and on Trigger, until its
// context is cancelled. Scan and ingest failures are logged, never fatal.
type Task struct {
	nodeID   string
	source   Source
	sink     Sink
	interval time.Duration
	trigger  chan struct{}
	logger   *logging.Logger
}

// NewTask creates a discovery task for nodeID
func NewTask(nodeID string, source Source, sink Sink, interval time.Duration, logger *logging.Logger) *Task {
	return &Task{
		nodeID:   nodeID,
		source:   source,
		sink:     sink,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With("component", "discovery.task", "node_id", nodeID),
	}
}

// Trigger requests an early rescan; requests coalesce while one is pending
func (t *Task) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// RunOnce performs one scan and ingest
func (t *Task) RunOnce() error {
	start := time.Now()
	facts, err := t.source.Scan()
	if err != nil {
		return err
	}
	gen, err := t.sink.Ingest(t.nodeID, facts)
	if err != nil {
		return err
	}
	t.logger.Info("Discovery scan ingested",
		"drives", len(facts),
		"generation", gen,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Run blocks until ctx is done
func (t *Task) Run(ctx context.Context) {
	t.runLogged()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Discovery task stopped")
			return
		case <-ticker.C:
			t.runLogged()
		case <-t.trigger:
			t.runLogged()
			ticker.Reset(t.interval)
		}
	}
}

func (t *Task) runLogged() {
	if err := t.RunOnce(); err != nil {
		t.logger.Error("Discovery scan failed", "error", err)
	}
}
