package wallet

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invest-portal/portal_service/internal/api/handlers/common"
	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// BalanceReader exposes the investor's ledger to the wallet endpoints
type BalanceReader interface {
	GetBalance(ctx context.Context, investorID uuid.UUID) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.Transaction, error)
}

// WalletHandlers handles balance and transaction history endpoints
type WalletHandlers struct {
	ledger BalanceReader
	logger *logger.Logger
}

// NewWalletHandlers creates a new WalletHandlers instance
func NewWalletHandlers(ledger BalanceReader, log *logger.Logger) *WalletHandlers {
	return &WalletHandlers{ledger: ledger, logger: log}
}

// GetBalance handles GET /api/v1/wallet/balance
func (h *WalletHandlers) GetBalance(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), investorID)
	if err != nil {
		common.RespondDomainError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{"available": balance})
}

// GetTransactions handles GET /api/v1/wallet/transactions
func (h *WalletHandlers) GetTransactions(c *gin.Context) {
	investorID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	limit := common.ParseIntQuery(c, "limit", 20)
	offset := common.ParseIntQuery(c, "offset", 0)

	txs, err := h.ledger.GetTransactions(c.Request.Context(), investorID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list transactions",
			"error", err,
			"investor_id", investorID.String())
		common.RespondInternalError(c)
		return
	}

	common.RespondSuccess(c, gin.H{"items": txs, "count": len(txs)})
}
