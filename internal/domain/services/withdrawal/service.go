package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/pkg/logger"
	"github.com/invest-portal/portal_service/pkg/metrics"
)

var tracer = otel.Tracer("withdrawal-service")

// Repository interface for withdrawal persistence
type Repository interface {
	Create(ctx context.Context, req *entities.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetByInvestorID(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	// MarkApproved transitions pending -> approved. The update is guarded on
	// the current status being pending; a conflicting write returns
	// entities.ErrInvalidStatusTransition.
	MarkApproved(ctx context.Context, id uuid.UUID, approverID string) error
	// UpdateStatus performs a guarded transition from -> to, setting the
	// stored progress and timestamps derived from the target status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus, actor *string, notes *string) error
	SetTransactionHash(ctx context.Context, id uuid.UUID, hash, actor string) error
	// MarkSettlementGenerated sets the settlement flag and records the
	// document. Returns true if the document already existed.
	MarkSettlementGenerated(ctx context.Context, id uuid.UUID, messageReference string) (alreadyGenerated bool, err error)
	GetStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error)
}

// BalanceLedger interface for the investor balance store. The debit must be
// atomic with its ledger transaction record and idempotent per withdrawal:
// a second debit for the same withdrawal id returns entities.ErrDuplicateDebit.
type BalanceLedger interface {
	GetBalance(ctx context.Context, investorID uuid.UUID) (decimal.Decimal, error)
	DebitForWithdrawal(ctx context.Context, req *entities.WithdrawalRequest) error
	Credit(ctx context.Context, investorID uuid.UUID, amount decimal.Decimal, reference, description string) error
}

// Notifier publishes withdrawal change events. Fire-and-forget: publish
// failures are logged, never surfaced to the caller.
type Notifier interface {
	PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error
}

// EventStream delivers withdrawal change events for a single investor until
// the returned cancel function is called
type EventStream interface {
	Subscribe(ctx context.Context, investorID uuid.UUID) (<-chan entities.WithdrawalEvent, func(), error)
}

// Service orchestrates the withdrawal request lifecycle: creation, approval
// with the balance debit, forward progression and terminal transitions.
type Service struct {
	repo      Repository
	ledger    BalanceLedger
	notifier  Notifier
	stream    EventStream
	calc      *FeeCalculator
	validator *AmountValidator
	cfg       Config
	logger    *logger.Logger
}

// NewService creates a withdrawal lifecycle service
func NewService(repo Repository, ledger BalanceLedger, notifier Notifier, cfg Config, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		notifier:  notifier,
		calc:      NewFeeCalculator(cfg),
		validator: NewAmountValidator(cfg),
		cfg:       cfg,
		logger:    log,
	}
}

// SetEventStream sets the change-event stream used by Subscribe (optional)
func (s *Service) SetEventStream(stream EventStream) {
	s.stream = stream
}

// Calculator exposes the fee calculator for read-only breakdown previews
func (s *Service) Calculator() *FeeCalculator {
	return s.calc
}

// Submit validates and creates a new withdrawal request. The balance is read
// at call time for validation only; it is debited at approval, not here.
func (s *Service) Submit(ctx context.Context, req *entities.SubmitWithdrawalRequest) (*entities.SubmitWithdrawalResponse, error) {
	ctx, span := tracer.Start(ctx, "withdrawal.submit", trace.WithAttributes(
		attribute.String("investor_id", req.InvestorID.String()),
		attribute.String("amount", req.Amount.String())))
	defer span.End()

	if !req.Amount.IsPositive() {
		return nil, entities.ErrAmountNotPositive
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, req.InvestorID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if err := s.validator.Validate(req.Amount, balance); err != nil {
		s.logger.Warn("Withdrawal submission rejected",
			"investor_id", req.InvestorID.String(),
			"amount", req.Amount.String(),
			"reason", err.Error())
		return nil, err
	}

	breakdown := s.calc.Breakdown(req.Amount)
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	now := time.Now()
	withdrawal := &entities.WithdrawalRequest{
		ID:            uuid.New(),
		InvestorID:    req.InvestorID,
		Amount:        breakdown.Amount,
		PlatformFee:   breakdown.PlatformFee,
		NetAmount:     breakdown.NetAmount,
		FeePercentage: breakdown.FeePercentage,
		Currency:      currency,
		Type:          req.Destination.Type,
		Destination:   req.Destination,
		Status:        entities.WithdrawalStatusPending,
		Progress:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, withdrawal); err != nil {
		s.logger.Error("Failed to create withdrawal request",
			"error", err,
			"investor_id", req.InvestorID.String())
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	metrics.WithdrawalsCreated.Inc()
	s.publishEvent(ctx, withdrawal)
	s.logger.Info("Withdrawal request created",
		"withdrawal_id", withdrawal.ID.String(),
		"investor_id", req.InvestorID.String(),
		"amount", withdrawal.Amount.String(),
		"net_amount", withdrawal.NetAmount.String(),
		"type", string(withdrawal.Type))

	return &entities.SubmitWithdrawalResponse{
		WithdrawalID: withdrawal.ID,
		Status:       withdrawal.Status,
		Breakdown:    breakdown,
	}, nil
}

// Approve debits the investor's balance and transitions the request from
// pending to approved. The debit is committed before the approved status
// becomes visible, and it happens exactly once per withdrawal: a duplicate
// debit from an earlier partially-failed attempt is detected by the ledger
// and the approval resumes with the status write.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approverID string) error {
	ctx, span := tracer.Start(ctx, "withdrawal.approve", trace.WithAttributes(
		attribute.String("withdrawal_id", id.String())))
	defer span.End()

	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.Status != entities.WithdrawalStatusPending {
		return fmt.Errorf("%w: cannot approve withdrawal in %s status",
			entities.ErrInvalidStatusTransition, w.Status)
	}

	// Re-read happens inside the ledger under a row lock; the balance may
	// have moved since submission.
	if err := s.ledger.DebitForWithdrawal(ctx, w); err != nil {
		if errors.Is(err, entities.ErrDuplicateDebit) {
			s.logger.Warn("Debit already applied, resuming approval",
				"withdrawal_id", id.String())
		} else {
			s.logger.Error("Failed to debit balance for withdrawal",
				"error", err,
				"withdrawal_id", id.String(),
				"investor_id", w.InvestorID.String())
			return err
		}
	}

	if err := s.repo.MarkApproved(ctx, id, approverID); err != nil {
		return err
	}

	w.Status = entities.WithdrawalStatusApproved
	w.Progress = entities.WithdrawalStatusApproved.StoredProgress()
	metrics.WithdrawalsApproved.Inc()
	s.publishEvent(ctx, w)
	s.logger.Info("Withdrawal approved",
		"withdrawal_id", id.String(),
		"approver_id", approverID,
		"amount", w.Amount.String())
	return nil
}

// Advance moves an approved withdrawal forward: processing,
// sent_to_blockchain (crypto only) or directly credited.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, newStatus entities.WithdrawalStatus, actor string, notes *string) error {
	switch newStatus {
	case entities.WithdrawalStatusProcessing, entities.WithdrawalStatusSentToBlockchain, entities.WithdrawalStatusCredited:
	default:
		return fmt.Errorf("%w: %s is not a forward status", entities.ErrInvalidStatusTransition, newStatus)
	}

	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if newStatus == entities.WithdrawalStatusSentToBlockchain && w.Type != entities.WithdrawalTypeCrypto {
		return fmt.Errorf("%w: sent_to_blockchain applies to crypto withdrawals", entities.ErrWrongDestinationType)
	}
	if err := w.Status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, w.Status, newStatus, &actor, notes); err != nil {
		return err
	}

	w.Status = newStatus
	w.Progress = newStatus.StoredProgress()
	if newStatus == entities.WithdrawalStatusCredited {
		metrics.WithdrawalsCredited.Inc()
	}
	s.publishEvent(ctx, w)
	s.logger.Info("Withdrawal advanced",
		"withdrawal_id", id.String(),
		"status", string(newStatus),
		"actor", actor)
	return nil
}

// Reject declines a pending or approved withdrawal. A debit already taken at
// approval is not reversed here; see ReverseDebit.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor, reason string) error {
	return s.terminate(ctx, id, entities.WithdrawalStatusRejected, actor, reason)
}

// Refund marks a pending or approved withdrawal as refunded
func (s *Service) Refund(ctx context.Context, id uuid.UUID, actor, reason string) error {
	return s.terminate(ctx, id, entities.WithdrawalStatusRefunded, actor, reason)
}

// Cancel cancels a pending or approved withdrawal
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor string) error {
	return s.terminate(ctx, id, entities.WithdrawalStatusCancelled, actor, "cancelled")
}

// CancelOwn cancels a withdrawal on behalf of the investor who owns it
func (s *Service) CancelOwn(ctx context.Context, id, investorID uuid.UUID) error {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.InvestorID != investorID {
		return entities.ErrWithdrawalNotFound
	}
	return s.Cancel(ctx, id, investorID.String())
}

func (s *Service) terminate(ctx context.Context, id uuid.UUID, to entities.WithdrawalStatus, actor, reason string) error {
	ctx, span := tracer.Start(ctx, "withdrawal.terminate", trace.WithAttributes(
		attribute.String("withdrawal_id", id.String()),
		attribute.String("target_status", string(to))))
	defer span.End()

	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := w.Status.ValidateTransition(to); err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, w.Status, to, &actor, &reason); err != nil {
		return err
	}

	w.Status = to
	w.Progress = 0
	metrics.WithdrawalsRejected.Inc()
	s.publishEvent(ctx, w)
	s.logger.Info("Withdrawal terminated",
		"withdrawal_id", id.String(),
		"status", string(to),
		"actor", actor,
		"reason", reason)
	return nil
}

// ReverseDebit credits back the amount of a terminated withdrawal whose
// approval debit was already taken. This is an explicit operator action; it
// never runs automatically on reject or refund.
func (s *Service) ReverseDebit(ctx context.Context, id uuid.UUID, actor string) error {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !w.Status.IsRejectionFamily() {
		return fmt.Errorf("%w: reversal requires a terminated withdrawal", entities.ErrInvalidStatusTransition)
	}
	if w.ApprovedAt == nil {
		return fmt.Errorf("%w: withdrawal was never debited", entities.ErrInvalidStatusTransition)
	}

	reference := fmt.Sprintf("reversal-%s", w.ID.String())
	description := fmt.Sprintf("Reversal of withdrawal %s", w.ID.String())
	if err := s.ledger.Credit(ctx, w.InvestorID, w.Amount, reference, description); err != nil {
		return fmt.Errorf("failed to credit reversal: %w", err)
	}

	s.logger.Info("Withdrawal debit reversed",
		"withdrawal_id", id.String(),
		"actor", actor,
		"amount", w.Amount.String())
	return nil
}

// AttachTransactionHash records the on-chain transaction hash for a crypto
// withdrawal that has been sent to the blockchain
func (s *Service) AttachTransactionHash(ctx context.Context, id uuid.UUID, hash, actor string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash is required")
	}

	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.Type != entities.WithdrawalTypeCrypto {
		return fmt.Errorf("%w: transaction hashes apply to crypto withdrawals", entities.ErrWrongDestinationType)
	}
	switch w.Status {
	case entities.WithdrawalStatusProcessing, entities.WithdrawalStatusSentToBlockchain:
	default:
		return fmt.Errorf("%w: cannot attach hash in %s status", entities.ErrInvalidStatusTransition, w.Status)
	}

	if err := s.repo.SetTransactionHash(ctx, id, hash, actor); err != nil {
		return err
	}

	s.logger.Info("Transaction hash attached",
		"withdrawal_id", id.String(),
		"hash", hash,
		"actor", actor)
	return nil
}

// MarkSentToBlockchain advances a crypto withdrawal and attaches the
// broadcast transaction hash in one operation
func (s *Service) MarkSentToBlockchain(ctx context.Context, id uuid.UUID, hash, actor string) error {
	if err := s.Advance(ctx, id, entities.WithdrawalStatusSentToBlockchain, actor, nil); err != nil {
		return err
	}
	return s.AttachTransactionHash(ctx, id, hash, actor)
}

// GenerateSettlementDocument records the MT103-equivalent settlement artifact
// for an approved bank withdrawal. Idempotent: regeneration is a no-op.
func (s *Service) GenerateSettlementDocument(ctx context.Context, id uuid.UUID) error {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.Type != entities.WithdrawalTypeBank {
		return fmt.Errorf("%w: settlement documents apply to bank withdrawals", entities.ErrWrongDestinationType)
	}
	switch w.Status {
	case entities.WithdrawalStatusApproved, entities.WithdrawalStatusProcessing, entities.WithdrawalStatusCredited:
	default:
		return fmt.Errorf("%w: settlement document requires an approved withdrawal", entities.ErrInvalidStatusTransition)
	}

	reference := fmt.Sprintf("MT103-%s-%d", w.ID.String(), time.Now().Unix())
	already, err := s.repo.MarkSettlementGenerated(ctx, id, reference)
	if err != nil {
		return err
	}
	if already {
		s.logger.Debug("Settlement document already generated", "withdrawal_id", id.String())
		return nil
	}

	s.logger.Info("Settlement document generated",
		"withdrawal_id", id.String(),
		"message_reference", reference)
	return nil
}

// GetWithdrawal retrieves a withdrawal by ID
func (s *Service) GetWithdrawal(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return s.repo.GetByID(ctx, id)
}

// GetInvestorWithdrawals retrieves withdrawals for an investor, newest first
func (s *Service) GetInvestorWithdrawals(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	return s.repo.GetByInvestorID(ctx, investorID, limit, offset)
}

// Subscribe opens a change-event stream for one investor's withdrawals. The
// caller tears it down via the returned cancel function.
func (s *Service) Subscribe(ctx context.Context, investorID uuid.UUID) (<-chan entities.WithdrawalEvent, func(), error) {
	if s.stream == nil {
		return nil, nil, fmt.Errorf("event stream not configured")
	}
	return s.stream.Subscribe(ctx, investorID)
}

// FindStalePending returns pending withdrawals older than the SLA, for the
// reconciliation sweep
func (s *Service) FindStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error) {
	return s.repo.GetStalePending(ctx, olderThan)
}

func (s *Service) publishEvent(ctx context.Context, w *entities.WithdrawalRequest) {
	if s.notifier == nil {
		return
	}
	event := entities.WithdrawalEvent{
		WithdrawalID: w.ID,
		InvestorID:   w.InvestorID,
		Status:       w.Status,
		Progress:     w.Progress,
		OccurredAt:   time.Now(),
	}
	if err := s.notifier.PublishWithdrawalEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish withdrawal event",
			"error", err,
			"withdrawal_id", w.ID.String())
	}
}
