package withdrawal_sweep

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/internal/infrastructure/config"
	"github.com/invest-portal/portal_service/pkg/logger"
)

type stubFinder struct {
	stale []*entities.WithdrawalRequest
	err   error
}

func (s *stubFinder) FindStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error) {
	return s.stale, s.err
}

type recordingNotifier struct {
	events []entities.WithdrawalEvent
}

func (n *recordingNotifier) PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error {
	n.events = append(n.events, event)
	return nil
}

func sweepConfig() config.SweepConfig {
	return config.SweepConfig{Enabled: true, Schedule: "@every 1h", SLA: 72 * time.Hour}
}

func TestSweep_EscalatesStaleWithdrawals(t *testing.T) {
	stale := []*entities.WithdrawalRequest{
		{ID: uuid.New(), InvestorID: uuid.New(), Status: entities.WithdrawalStatusPending},
		{ID: uuid.New(), InvestorID: uuid.New(), Status: entities.WithdrawalStatusPending},
	}
	notifier := &recordingNotifier{}
	worker := NewWorker(&stubFinder{stale: stale}, notifier, sweepConfig(), logger.NewNop())

	worker.Sweep(context.Background())

	assert.Len(t, notifier.events, 2)
	assert.Equal(t, stale[0].ID, notifier.events[0].WithdrawalID)
	assert.Equal(t, entities.WithdrawalStatusPending, notifier.events[0].Status)
}

func TestSweep_NothingStale(t *testing.T) {
	notifier := &recordingNotifier{}
	worker := NewWorker(&stubFinder{}, notifier, sweepConfig(), logger.NewNop())

	worker.Sweep(context.Background())

	assert.Empty(t, notifier.events)
}

func TestSweep_FinderErrorDoesNotNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	worker := NewWorker(&stubFinder{err: fmt.Errorf("connection refused")}, notifier, sweepConfig(), logger.NewNop())

	worker.Sweep(context.Background())

	assert.Empty(t, notifier.events)
}

func TestSweep_NilNotifier(t *testing.T) {
	stale := []*entities.WithdrawalRequest{
		{ID: uuid.New(), InvestorID: uuid.New(), Status: entities.WithdrawalStatusPending},
	}
	worker := NewWorker(&stubFinder{stale: stale}, nil, sweepConfig(), logger.NewNop())

	// Must not panic without a notifier wired
	worker.Sweep(context.Background())
}
