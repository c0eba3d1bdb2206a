package wallet

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invest-portal/portal_service/internal/api/handlers/common"
	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/internal/domain/services/withdrawal"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// WithdrawalServiceInterface defines the lifecycle operations the investor
// surface needs
type WithdrawalServiceInterface interface {
	Submit(ctx context.Context, req *entities.SubmitWithdrawalRequest) (*entities.SubmitWithdrawalResponse, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetInvestorWithdrawals(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	CancelOwn(ctx context.Context, id, investorID uuid.UUID) error
	Subscribe(ctx context.Context, investorID uuid.UUID) (<-chan entities.WithdrawalEvent, func(), error)
	Calculator() *withdrawal.FeeCalculator
}

// WithdrawalHandlers handles the investor-facing withdrawal endpoints
type WithdrawalHandlers struct {
	service   WithdrawalServiceInterface
	validator *validator.Validate
	logger    *logger.Logger
}

// NewWithdrawalHandlers creates a new WithdrawalHandlers instance
func NewWithdrawalHandlers(service WithdrawalServiceInterface, log *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{
		service:   service,
		validator: validator.New(),
		logger:    log,
	}
}

type submitWithdrawalPayload struct {
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency" validate:"omitempty,len=3"`
	Destination entities.Destination `json:"destination"`
}

// withdrawalView decorates a withdrawal with its display projection
type withdrawalView struct {
	*entities.WithdrawalRequest
	Projection withdrawal.Projection `json:"projection"`
}

func toView(w *entities.WithdrawalRequest) withdrawalView {
	return withdrawalView{WithdrawalRequest: w, Projection: withdrawal.Project(w)}
}

// SubmitWithdrawal handles POST /api/v1/withdrawals
func (h *WithdrawalHandlers) SubmitWithdrawal(c *gin.Context) {
	var payload submitWithdrawalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, err.Error())
		return
	}

	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), &entities.SubmitWithdrawalRequest{
		InvestorID:  investorID,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		Destination: payload.Destination,
	})
	if err != nil {
		h.logger.Warn("Withdrawal submission failed",
			"error", err,
			"investor_id", investorID.String(),
			"amount", payload.Amount.String())
		common.RespondDomainError(c, err)
		return
	}

	common.RespondCreated(c, resp)
}

// PreviewBreakdown handles GET /api/v1/withdrawals/breakdown?amount=1000
func (h *WithdrawalHandlers) PreviewBreakdown(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		common.RespondBadRequest(c, common.ErrCodeInvalidAmount, "Amount must be a positive number")
		return
	}
	common.RespondSuccess(c, h.service.Calculator().Breakdown(amount))
}

// GetWithdrawal handles GET /api/v1/withdrawals/:withdrawalId
func (h *WithdrawalHandlers) GetWithdrawal(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	withdrawalID, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "Invalid withdrawal ID format")
		return
	}

	w, err := h.service.GetWithdrawal(c.Request.Context(), withdrawalID)
	if err != nil {
		common.RespondDomainError(c, err)
		return
	}
	if w.InvestorID != investorID {
		common.RespondNotFound(c, common.ErrCodeWithdrawalNotFound, "Withdrawal not found")
		return
	}

	common.RespondSuccess(c, toView(w))
}

// ListWithdrawals handles GET /api/v1/withdrawals
func (h *WithdrawalHandlers) ListWithdrawals(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	limit := common.ParseIntQuery(c, "limit", 20)
	offset := common.ParseIntQuery(c, "offset", 0)

	withdrawals, err := h.service.GetInvestorWithdrawals(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list withdrawals",
			"error", err,
			"investor_id", investorID.String())
		common.RespondInternalError(c)
		return
	}

	views := make([]withdrawalView, 0, len(withdrawals))
	for _, w := range withdrawals {
		views = append(views, toView(w))
	}
	common.RespondSuccess(c, gin.H{"items": views, "count": len(views)})
}

// StreamWithdrawals handles GET /api/v1/withdrawals/stream as server-sent
// events fed by the change-event subscription
func (h *WithdrawalHandlers) StreamWithdrawals(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	events, cancel, err := h.service.Subscribe(c.Request.Context(), investorID)
	if err != nil {
		h.logger.Error("Failed to open withdrawal stream",
			"error", err,
			"investor_id", investorID.String())
		common.RespondInternalError(c)
		return
	}
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("withdrawal", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// CancelWithdrawal handles DELETE /api/v1/withdrawals/:withdrawalId
func (h *WithdrawalHandlers) CancelWithdrawal(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	withdrawalID, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "Invalid withdrawal ID format")
		return
	}

	if err := h.service.CancelOwn(c.Request.Context(), withdrawalID, investorID); err != nil {
		common.RespondDomainError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{"message": "Withdrawal cancelled"})
}
