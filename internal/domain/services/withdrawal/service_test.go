package withdrawal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/pkg/logger"
)

type fakeRepo struct {
	withdrawals map[uuid.UUID]*entities.WithdrawalRequest
	settlements map[uuid.UUID]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		withdrawals: make(map[uuid.UUID]*entities.WithdrawalRequest),
		settlements: make(map[uuid.UUID]string),
	}
}

func (r *fakeRepo) Create(ctx context.Context, req *entities.WithdrawalRequest) error {
	copied := *req
	r.withdrawals[req.ID] = &copied
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, entities.ErrWithdrawalNotFound
	}
	copied := *w
	return &copied, nil
}

func (r *fakeRepo) GetByInvestorID(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	var out []*entities.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.InvestorID == investorID {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkApproved(ctx context.Context, id uuid.UUID, approverID string) error {
	w, ok := r.withdrawals[id]
	if !ok {
		return entities.ErrWithdrawalNotFound
	}
	if w.Status != entities.WithdrawalStatusPending {
		return fmt.Errorf("%w: withdrawal is %s", entities.ErrInvalidStatusTransition, w.Status)
	}
	now := time.Now()
	w.Status = entities.WithdrawalStatusApproved
	w.Progress = entities.WithdrawalStatusApproved.StoredProgress()
	w.ApprovedAt = &now
	w.ProcessedBy = &approverID
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus, actor *string, notes *string) error {
	w, ok := r.withdrawals[id]
	if !ok {
		return entities.ErrWithdrawalNotFound
	}
	if w.Status != from {
		return fmt.Errorf("%w: withdrawal is %s, expected %s", entities.ErrInvalidStatusTransition, w.Status, from)
	}
	w.Status = to
	w.Progress = to.StoredProgress()
	if to.IsRejectionFamily() {
		w.Reason = notes
	}
	return nil
}

func (r *fakeRepo) SetTransactionHash(ctx context.Context, id uuid.UUID, hash, actor string) error {
	w, ok := r.withdrawals[id]
	if !ok {
		return entities.ErrWithdrawalNotFound
	}
	if w.TransactionHash != nil {
		return nil
	}
	now := time.Now()
	w.TransactionHash = &hash
	w.HashAttachedAt = &now
	w.HashAttachedBy = &actor
	return nil
}

func (r *fakeRepo) MarkSettlementGenerated(ctx context.Context, id uuid.UUID, messageReference string) (bool, error) {
	w, ok := r.withdrawals[id]
	if !ok {
		return false, entities.ErrWithdrawalNotFound
	}
	if w.SettlementGenerated {
		return true, nil
	}
	now := time.Now()
	w.SettlementGenerated = true
	w.SettlementGeneratedAt = &now
	r.settlements[id] = messageReference
	return false, nil
}

func (r *fakeRepo) GetStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error) {
	cutoff := time.Now().Add(-olderThan)
	var out []*entities.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.Status == entities.WithdrawalStatusPending && w.CreatedAt.Before(cutoff) {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeLedger struct {
	balances map[uuid.UUID]decimal.Decimal
	debited  map[uuid.UUID]bool
	debits   int
	credits  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[uuid.UUID]decimal.Decimal),
		debited:  make(map[uuid.UUID]bool),
	}
}

func (l *fakeLedger) GetBalance(ctx context.Context, investorID uuid.UUID) (decimal.Decimal, error) {
	balance, ok := l.balances[investorID]
	if !ok {
		return decimal.Zero, entities.ErrBalanceNotFound
	}
	return balance, nil
}

func (l *fakeLedger) DebitForWithdrawal(ctx context.Context, w *entities.WithdrawalRequest) error {
	if l.debited[w.ID] {
		return entities.ErrDuplicateDebit
	}
	balance := l.balances[w.InvestorID]
	if balance.LessThan(w.Amount) {
		return fmt.Errorf("%w: have %s, need %s", entities.ErrInsufficientFundsAtApproval, balance, w.Amount)
	}
	l.balances[w.InvestorID] = balance.Sub(w.Amount)
	l.debited[w.ID] = true
	l.debits++
	return nil
}

func (l *fakeLedger) Credit(ctx context.Context, investorID uuid.UUID, amount decimal.Decimal, reference, description string) error {
	l.balances[investorID] = l.balances[investorID].Add(amount)
	l.credits++
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeLedger) {
	t.Helper()
	repo := newFakeRepo()
	ledger := newFakeLedger()
	svc := NewService(repo, ledger, nil, DefaultConfig(), logger.NewNop())
	return svc, repo, ledger
}

func bankDestination() entities.Destination {
	return entities.Destination{
		Type: entities.WithdrawalTypeBank,
		Bank: &entities.BankAccount{
			AccountName:   "Ada Lovelace",
			AccountNumber: "0123456789",
			BankName:      "First Bank",
			Country:       "GB",
		},
	}
}

func cryptoDestination() entities.Destination {
	return entities.Destination{
		Type: entities.WithdrawalTypeCrypto,
		Crypto: &entities.CryptoWallet{
			Address:  "0xDEAD0000000000000000000000000000000000",
			Network:  "ethereum",
			CoinType: "USDT",
		},
	}
}

func submit(t *testing.T, svc *Service, ledger *fakeLedger, investorID uuid.UUID, amount int64, dest entities.Destination) uuid.UUID {
	t.Helper()
	resp, err := svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(amount),
		Destination: dest,
	})
	require.NoError(t, err)
	return resp.WithdrawalID
}

func TestSubmit_CreatesPendingWithBreakdown(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)

	resp, err := svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(400),
		Destination: bankDestination(),
	})

	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, resp.Status)
	assert.True(t, resp.Breakdown.PlatformFee.Equal(decimal.NewFromInt(60)))
	assert.True(t, resp.Breakdown.NetAmount.Equal(decimal.NewFromInt(340)))

	stored := repo.withdrawals[resp.WithdrawalID]
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.Progress)
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, entities.WithdrawalTypeBank, stored.Type)

	// Submission never moves money
	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(1000)))
	assert.Zero(t, ledger.debits)
}

func TestSubmit_RejectsBadAmounts(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(300)

	_, err := svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(-5),
		Destination: bankDestination(),
	})
	assert.ErrorIs(t, err, entities.ErrAmountNotPositive)

	_, err = svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(50),
		Destination: bankDestination(),
	})
	assert.ErrorIs(t, err, entities.ErrAmountBelowMinimum)

	_, err = svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(500),
		Destination: bankDestination(),
	})
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)
}

func TestSubmit_RejectsMalformedDestination(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)

	dest := bankDestination()
	dest.Crypto = cryptoDestination().Crypto

	_, err := svc.Submit(context.Background(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      decimal.NewFromInt(400),
		Destination: dest,
	})
	assert.ErrorIs(t, err, entities.ErrInvalidDestination)
}

func TestApprove_DebitsBalanceOnce(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))

	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 1, ledger.debits)

	stored := repo.withdrawals[id]
	assert.Equal(t, entities.WithdrawalStatusApproved, stored.Status)
	assert.Equal(t, 50, stored.Progress)
	require.NotNil(t, stored.ApprovedAt)

	// Second approval must not take a second debit
	err := svc.Approve(context.Background(), id, "admin-2")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)
	assert.Equal(t, 1, ledger.debits)
	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(600)))
}

func TestApprove_InsufficientFundsAtApproval(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 800, bankDestination())

	// Balance dropped between submission and review
	ledger.balances[investorID] = decimal.NewFromInt(100)

	err := svc.Approve(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, entities.ErrInsufficientFundsAtApproval)
	assert.Equal(t, entities.WithdrawalStatusPending, repo.withdrawals[id].Status)
}

func TestApprove_ResumesAfterPartialFailure(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	// Simulate a crash after the debit committed but before the status write
	w := repo.withdrawals[id]
	require.NoError(t, ledger.DebitForWithdrawal(context.Background(), w))

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))

	assert.Equal(t, entities.WithdrawalStatusApproved, repo.withdrawals[id].Status)
	assert.Equal(t, 1, ledger.debits)
	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(600)))
}

func TestReject_PendingKeepsBalance(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Reject(context.Background(), id, "admin-1", "KYC mismatch"))

	stored := repo.withdrawals[id]
	assert.Equal(t, entities.WithdrawalStatusRejected, stored.Status)
	assert.Equal(t, 0, stored.Progress)
	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(1000)))
	assert.Zero(t, ledger.debits)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Reject(context.Background(), id, "admin-1", "duplicate request"))

	err := svc.Approve(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)

	err = svc.Cancel(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)
}

func TestCancelOwn_ChecksOwnership(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	err := svc.CancelOwn(context.Background(), id, uuid.New())
	assert.ErrorIs(t, err, entities.ErrWithdrawalNotFound)
	assert.Equal(t, entities.WithdrawalStatusPending, repo.withdrawals[id].Status)

	require.NoError(t, svc.CancelOwn(context.Background(), id, investorID))
	assert.Equal(t, entities.WithdrawalStatusCancelled, repo.withdrawals[id].Status)
}

func TestCryptoFlow_SentToBlockchainThenCredited(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(5000)
	id := submit(t, svc, ledger, investorID, 1000, cryptoDestination())

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))
	require.NoError(t, svc.MarkSentToBlockchain(context.Background(), id, "0xabc", "admin-1"))

	stored := repo.withdrawals[id]
	assert.Equal(t, entities.WithdrawalStatusSentToBlockchain, stored.Status)
	assert.Equal(t, 75, stored.Progress)
	require.NotNil(t, stored.TransactionHash)
	assert.Equal(t, "0xabc", *stored.TransactionHash)

	require.NoError(t, svc.Advance(context.Background(), id, entities.WithdrawalStatusCredited, "admin-1", nil))
	assert.Equal(t, entities.WithdrawalStatusCredited, repo.withdrawals[id].Status)
	assert.Equal(t, 100, repo.withdrawals[id].Progress)
}

func TestAdvance_SentToBlockchainRequiresCrypto(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))

	err := svc.Advance(context.Background(), id, entities.WithdrawalStatusSentToBlockchain, "admin-1", nil)
	assert.ErrorIs(t, err, entities.ErrWrongDestinationType)
}

func TestAdvance_RejectsNonForwardStatus(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	err := svc.Advance(context.Background(), id, entities.WithdrawalStatusRejected, "admin-1", nil)
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)
}

func TestAttachTransactionHash_Rules(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(5000)

	bankID := submit(t, svc, ledger, investorID, 400, bankDestination())
	require.NoError(t, svc.Approve(context.Background(), bankID, "admin-1"))
	err := svc.AttachTransactionHash(context.Background(), bankID, "0xabc", "admin-1")
	assert.ErrorIs(t, err, entities.ErrWrongDestinationType)

	cryptoID := submit(t, svc, ledger, investorID, 400, cryptoDestination())
	err = svc.AttachTransactionHash(context.Background(), cryptoID, "0xabc", "admin-1")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)
}

func TestGenerateSettlementDocument_Idempotent(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))
	require.NoError(t, svc.GenerateSettlementDocument(context.Background(), id))

	first := repo.settlements[id]
	assert.Contains(t, first, "MT103-"+id.String())

	require.NoError(t, svc.GenerateSettlementDocument(context.Background(), id))
	assert.Equal(t, first, repo.settlements[id])
}

func TestGenerateSettlementDocument_Rules(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(5000)

	pendingID := submit(t, svc, ledger, investorID, 400, bankDestination())
	err := svc.GenerateSettlementDocument(context.Background(), pendingID)
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)

	cryptoID := submit(t, svc, ledger, investorID, 400, cryptoDestination())
	require.NoError(t, svc.Approve(context.Background(), cryptoID, "admin-1"))
	err = svc.GenerateSettlementDocument(context.Background(), cryptoID)
	assert.ErrorIs(t, err, entities.ErrWrongDestinationType)
}

func TestReverseDebit(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	// Not terminated yet
	err := svc.ReverseDebit(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)

	require.NoError(t, svc.Approve(context.Background(), id, "admin-1"))
	require.NoError(t, svc.Refund(context.Background(), id, "admin-1", "investor changed mind"))

	require.NoError(t, svc.ReverseDebit(context.Background(), id, "admin-1"))
	assert.True(t, ledger.balances[investorID].Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 1, ledger.credits)
}

func TestReverseDebit_RequiresADebit(t *testing.T) {
	svc, _, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(1000)
	id := submit(t, svc, ledger, investorID, 400, bankDestination())

	require.NoError(t, svc.Reject(context.Background(), id, "admin-1", "KYC mismatch"))

	err := svc.ReverseDebit(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, entities.ErrInvalidStatusTransition)
	assert.Zero(t, ledger.credits)
}

func TestFindStalePending(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	investorID := uuid.New()
	ledger.balances[investorID] = decimal.NewFromInt(5000)

	oldID := submit(t, svc, ledger, investorID, 400, bankDestination())
	repo.withdrawals[oldID].CreatedAt = time.Now().Add(-100 * time.Hour)
	submit(t, svc, ledger, investorID, 400, bankDestination())

	stale, err := svc.FindStalePending(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, oldID, stale[0].ID)
}
