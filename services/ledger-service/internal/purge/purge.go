// Package purge deletes published outbox rows once they are past retention.
package purge

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

type Job struct {
	purger    store.Purger
	retention time.Duration
	every     time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewJob(purger store.Purger, retention, every time.Duration, logger *slog.Logger, m *metrics.Metrics) *Job {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if every <= 0 {
		every = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Job{purger: purger, retention: retention, every: every, now: time.Now, logger: logger, metrics: m}
}

// RunOnce deletes rows sent before now minus retention. Pending rows are never touched.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	n, err := j.purger.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.metrics.Purged(ctx, n)
		j.logger.Info("outbox purge", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("outbox purge failed", "err", err)
			}
		}
	}
}
