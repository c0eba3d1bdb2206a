package withdrawal_sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/internal/infrastructure/config"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// StaleFinder returns pending withdrawals older than the given age
type StaleFinder interface {
	FindStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error)
}

// Notifier receives the sweep's escalation events
type Notifier interface {
	PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error
}

// Worker periodically sweeps for pending withdrawals that have sat past the
// review SLA and escalates them to the notifier
type Worker struct {
	finder   StaleFinder
	notifier Notifier
	cfg      config.SweepConfig
	cron     *cron.Cron
	logger   *logger.Logger
}

// NewWorker creates a sweep worker
func NewWorker(finder StaleFinder, notifier Notifier, cfg config.SweepConfig, log *logger.Logger) *Worker {
	return &Worker{
		finder:   finder,
		notifier: notifier,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   log,
	}
}

// Start schedules the sweep and begins running it
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		w.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule withdrawal sweep: %w", err)
	}
	w.cron.Start()
	w.logger.Info("Withdrawal sweep started",
		"schedule", w.cfg.Schedule,
		"sla", w.cfg.SLA.String())
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// Sweep runs a single pass: find stale pending withdrawals and escalate each
func (w *Worker) Sweep(ctx context.Context) {
	stale, err := w.finder.FindStalePending(ctx, w.cfg.SLA)
	if err != nil {
		w.logger.Error("Withdrawal sweep failed", "error", err)
		return
	}
	if len(stale) == 0 {
		w.logger.Debug("Withdrawal sweep found nothing stale")
		return
	}

	w.logger.Warn("Stale pending withdrawals found",
		"count", len(stale),
		"sla", w.cfg.SLA.String())

	if w.notifier == nil {
		return
	}
	for _, wd := range stale {
		event := entities.WithdrawalEvent{
			WithdrawalID: wd.ID,
			InvestorID:   wd.InvestorID,
			Status:       wd.Status,
			Progress:     wd.Progress,
			OccurredAt:   time.Now(),
		}
		if err := w.notifier.PublishWithdrawalEvent(ctx, event); err != nil {
			w.logger.Warn("Failed to escalate stale withdrawal",
				"error", err,
				"withdrawal_id", wd.ID.String())
		}
	}
}
