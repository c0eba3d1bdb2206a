package wallet

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invest-portal/portal_service/internal/api/handlers/common"
	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// AdminWithdrawalServiceInterface defines the operator-side lifecycle operations
type AdminWithdrawalServiceInterface interface {
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetInvestorWithdrawals(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	Approve(ctx context.Context, id uuid.UUID, approverID string) error
	Advance(ctx context.Context, id uuid.UUID, newStatus entities.WithdrawalStatus, actor string, notes *string) error
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) error
	Refund(ctx context.Context, id uuid.UUID, actor, reason string) error
	Cancel(ctx context.Context, id uuid.UUID, actor string) error
	ReverseDebit(ctx context.Context, id uuid.UUID, actor string) error
	MarkSentToBlockchain(ctx context.Context, id uuid.UUID, hash, actor string) error
	AttachTransactionHash(ctx context.Context, id uuid.UUID, hash, actor string) error
	GenerateSettlementDocument(ctx context.Context, id uuid.UUID) error
}

// AdminWithdrawalHandlers handles operator withdrawal endpoints
type AdminWithdrawalHandlers struct {
	service AdminWithdrawalServiceInterface
	logger  *logger.Logger
}

// NewAdminWithdrawalHandlers creates a new AdminWithdrawalHandlers instance
func NewAdminWithdrawalHandlers(service AdminWithdrawalServiceInterface, log *logger.Logger) *AdminWithdrawalHandlers {
	return &AdminWithdrawalHandlers{service: service, logger: log}
}

func (h *AdminWithdrawalHandlers) withdrawalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "Invalid withdrawal ID format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminWithdrawalHandlers) actor(c *gin.Context) string {
	if adminID, err := common.GetUserID(c); err == nil {
		return adminID.String()
	}
	return "system"
}

type reasonPayload struct {
	Reason string `json:"reason" binding:"required"`
}

type advancePayload struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

type hashPayload struct {
	Hash string `json:"hash" binding:"required"`
}

// GetWithdrawals handles GET /api/v1/admin/withdrawals?investor_id=
func (h *AdminWithdrawalHandlers) GetWithdrawals(c *gin.Context) {
	investorID, err := uuid.Parse(c.Query("investor_id"))
	if err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "investor_id query parameter is required")
		return
	}

	limit := common.ParseIntQuery(c, "limit", 50)
	offset := common.ParseIntQuery(c, "offset", 0)

	withdrawals, err := h.service.GetInvestorWithdrawals(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list withdrawals", "error", err, "investor_id", investorID.String())
		common.RespondInternalError(c)
		return
	}

	common.RespondSuccess(c, gin.H{"items": withdrawals, "count": len(withdrawals)})
}

// GetWithdrawal handles GET /api/v1/admin/withdrawals/:withdrawalId
func (h *AdminWithdrawalHandlers) GetWithdrawal(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	w, err := h.service.GetWithdrawal(c.Request.Context(), id)
	if err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, toView(w))
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/:withdrawalId/approve
func (h *AdminWithdrawalHandlers) ApproveWithdrawal(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	approver := h.actor(c)
	if err := h.service.Approve(c.Request.Context(), id, approver); err != nil {
		h.logger.Warn("Withdrawal approval failed",
			"error", err,
			"withdrawal_id", id.String(),
			"approver_id", approver)
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal approved"})
}

// AdvanceWithdrawal handles POST /api/v1/admin/withdrawals/:withdrawalId/advance
func (h *AdminWithdrawalHandlers) AdvanceWithdrawal(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	var payload advancePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "status is required")
		return
	}
	status, err := entities.NormalizeWithdrawalStatus(payload.Status)
	if err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := h.service.Advance(c.Request.Context(), id, status, h.actor(c), payload.Notes); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal advanced", "status": status})
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:withdrawalId/reject
func (h *AdminWithdrawalHandlers) RejectWithdrawal(c *gin.Context) {
	h.terminate(c, "reject")
}

// RefundWithdrawal handles POST /api/v1/admin/withdrawals/:withdrawalId/refund
func (h *AdminWithdrawalHandlers) RefundWithdrawal(c *gin.Context) {
	h.terminate(c, "refund")
}

func (h *AdminWithdrawalHandlers) terminate(c *gin.Context, op string) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	var payload reasonPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "reason is required")
		return
	}

	var err error
	if op == "refund" {
		err = h.service.Refund(c.Request.Context(), id, h.actor(c), payload.Reason)
	} else {
		err = h.service.Reject(c.Request.Context(), id, h.actor(c), payload.Reason)
	}
	if err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal " + op + "ed"})
}

// CancelWithdrawal handles POST /api/v1/admin/withdrawals/:withdrawalId/cancel
func (h *AdminWithdrawalHandlers) CancelWithdrawal(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), id, h.actor(c)); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal cancelled"})
}

// ReverseWithdrawalDebit handles POST /api/v1/admin/withdrawals/:withdrawalId/reverse
func (h *AdminWithdrawalHandlers) ReverseWithdrawalDebit(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	if err := h.service.ReverseDebit(c.Request.Context(), id, h.actor(c)); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal debit reversed"})
}

// MarkSentToBlockchain handles POST /api/v1/admin/withdrawals/:withdrawalId/sent
func (h *AdminWithdrawalHandlers) MarkSentToBlockchain(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	var payload hashPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "hash is required")
		return
	}
	if err := h.service.MarkSentToBlockchain(c.Request.Context(), id, payload.Hash, h.actor(c)); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Withdrawal sent to blockchain"})
}

// AttachTransactionHash handles POST /api/v1/admin/withdrawals/:withdrawalId/hash
func (h *AdminWithdrawalHandlers) AttachTransactionHash(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	var payload hashPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.RespondBadRequest(c, common.ErrCodeInvalidRequest, "hash is required")
		return
	}
	if err := h.service.AttachTransactionHash(c.Request.Context(), id, payload.Hash, h.actor(c)); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Transaction hash attached"})
}

// GenerateSettlementDocument handles POST /api/v1/admin/withdrawals/:withdrawalId/settlement
func (h *AdminWithdrawalHandlers) GenerateSettlementDocument(c *gin.Context) {
	id, ok := h.withdrawalID(c)
	if !ok {
		return
	}
	if err := h.service.GenerateSettlementDocument(c.Request.Context(), id); err != nil {
		common.RespondDomainError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"message": "Settlement document generated"})
}
