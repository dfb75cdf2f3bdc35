package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/queue"
	"github.com/soltixdb/unistor/internal/utils"
)

// Subject returns the broker subject for an event type, e.g.
// "unistor.events.NodeJoined"
func Subject(prefix string, t Type) string {
	return prefix + "." + string(t)
}

// ForwarderStats counts forwarded events
type ForwarderStats struct {
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
}

// Forwarder relays bus events to an external broker. It is a regular bus
// subscriber, so a slow broker only costs the forwarder its own drops.
type Forwarder struct {
	sub       *Subscription
	publisher queue.Publisher
	codec     Codec
	prefix    string
	timeout   time.Duration
	logger    *logging.Logger

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// NewForwarder subscribes to every event type on bus
func NewForwarder(bus *Bus, publisher queue.Publisher, codec Codec, prefix string, logger *logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Global()
	}
	return &Forwarder{
		sub:       bus.Subscribe("forwarder"),
		publisher: publisher,
		codec:     codec,
		prefix:    prefix,
		timeout:   utils.ForwardPublishTimeout,
		logger:    logger.With("component", "events.forwarder"),
	}
}

// Run forwards events until ctx is done or the bus closes
func (f *Forwarder) Run(ctx context.Context) {
	f.logger.Info("Event forwarder started", "prefix", f.prefix, "content_type", f.codec.ContentType())
	Consume(ctx, f.sub, func(e Event) {
		f.forward(ctx, e)
	})
	f.logger.Info("Event forwarder stopped",
		"forwarded", f.forwarded.Load(),
		"failed", f.failed.Load(),
		"dropped", f.sub.Dropped())
}

func (f *Forwarder) forward(ctx context.Context, e Event) {
	data, err := f.codec.Encode(e)
	if err != nil {
		f.failed.Add(1)
		f.logger.Warn("Failed to encode event", "type", string(e.Type), "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	subject := Subject(f.prefix, e.Type)
	if err := f.publisher.Publish(pubCtx, subject, data); err != nil {
		f.failed.Add(1)
		f.logger.Warn("Failed to forward event",
			"subject", subject,
			"node_id", e.NodeID,
			"error", err)
		return
	}
	f.forwarded.Add(1)
}

// Stats returns forwarding counters
func (f *Forwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Forwarded: f.forwarded.Load(),
		Failed:    f.failed.Load(),
	}
}
