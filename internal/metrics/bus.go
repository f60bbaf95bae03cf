package metrics

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/podknow/seeder/pkg/natsutil"
)

// AnomalyBus optionally republishes anomalies to a NATS subject so an
// external alerting consumer can subscribe without coupling to this
// process. A nil connection makes every publish a no-op, so anomaly
// callbacks still fire locally (e.g. for logging) with no NATS configured.
type AnomalyBus struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

// NewAnomalyBus binds a bus to subject over nc. nc may be nil.
func NewAnomalyBus(nc *nats.Conn, subject string, log *slog.Logger) *AnomalyBus {
	if log == nil {
		log = slog.Default()
	}
	return &AnomalyBus{nc: nc, subject: subject, log: log}
}

// Publish logs the anomaly and, if a NATS connection is configured, also
// publishes it to the bus's subject.
func (b *AnomalyBus) Publish(ctx context.Context, a Anomaly) {
	b.log.Warn("metrics anomaly",
		"metric", a.Metric,
		"rate", a.Rate,
		"threshold", a.Threshold,
		"window", a.Window,
	)
	if b.nc == nil {
		return
	}
	if err := natsutil.Publish(ctx, b.nc, b.subject, a); err != nil {
		b.log.Error("metrics: failed to publish anomaly", "error", err)
	}
}
