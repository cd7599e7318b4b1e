package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailroom/internal/model"
	"mailroom/internal/service"
	"mailroom/pkg/metrics"
)

// DeferredStore is the durable queue of scheduled sends.
type DeferredStore interface {
	ListDue(ctx context.Context, now time.Time) ([]model.ScheduledEmail, error)
	MarkSent(ctx context.Context, id int) error
}

// Dispatcher promotes a due entry through the same send path used by
// interactive requests.
type Dispatcher interface {
	SendBulk(ctx context.Context, job *service.BulkJob) ([]string, error)
}

// Scheduler polls the deferred queue on a fixed interval. Ticks run
// sequentially in one goroutine, so a slow batch delays the next tick
// instead of overlapping it.
type Scheduler struct {
	store    DeferredStore
	dispatch Dispatcher
	logger   *zap.Logger
	interval time.Duration
}

func New(store DeferredStore, dispatch Dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		dispatch: dispatch,
		logger:   logger,
		interval: 30 * time.Second,
	}
}

func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	s.interval = interval
	return s
}

// Start runs the polling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting deferred-send scheduler",
		zap.Duration("interval", s.interval),
	)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Deferred-send scheduler stopped")
				return
			case <-ticker.C:
				s.ProcessDue(ctx)
			}
		}
	}()
}

// ProcessDue runs one tick: every due, unsent entry is dispatched and
// marked sent only on full success. Failed entries stay unsent and are
// retried on later ticks indefinitely.
func (s *Scheduler) ProcessDue(ctx context.Context) {
	start := time.Now()

	entries, err := s.store.ListDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to query due scheduled emails", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	s.logger.Info("Processing scheduled emails", zap.Int("count", len(entries)))

	promoted := 0
	for _, entry := range entries {
		failed, err := s.dispatch.SendBulk(ctx, &service.BulkJob{
			FromRole:     entry.FromRole,
			To:           []string{entry.ToEmail},
			Subject:      entry.Subject,
			Body:         entry.Body,
			ContentType:  entry.ContentType,
			TemplateName: entry.TemplateName,
			Attachments:  entry.Attachments,
		})
		if err != nil || len(failed) > 0 {
			s.logger.Warn("Scheduled email not sent, will retry next tick",
				zap.Int("id", entry.ID),
				zap.String("to", entry.ToEmail),
				zap.Error(err),
			)
			continue
		}

		if err := s.store.MarkSent(ctx, entry.ID); err != nil {
			s.logger.Error("Failed to mark scheduled email as sent",
				zap.Int("id", entry.ID),
				zap.Error(err),
			)
			continue
		}
		promoted++
	}

	metrics.RecordSchedulerTick(promoted, time.Since(start))
}
