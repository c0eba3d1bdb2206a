package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invest-portal/portal_service/internal/api/handlers/wallet"
	"github.com/invest-portal/portal_service/internal/api/middleware"
	"github.com/invest-portal/portal_service/internal/infrastructure/config"
	"github.com/invest-portal/portal_service/pkg/logger"
	"github.com/invest-portal/portal_service/pkg/metrics"
)

// SetupRoutes builds the gin router with all portal routes registered
func SetupRoutes(
	cfg *config.Config,
	log *logger.Logger,
	withdrawalHandlers *wallet.WithdrawalHandlers,
	adminHandlers *wallet.AdminWithdrawalHandlers,
	walletHandlers *wallet.WalletHandlers,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Auth.JWTSecret))

	withdrawals := v1.Group("/withdrawals")
	{
		withdrawals.POST("", withdrawalHandlers.SubmitWithdrawal)
		withdrawals.GET("", withdrawalHandlers.ListWithdrawals)
		withdrawals.GET("/breakdown", withdrawalHandlers.PreviewBreakdown)
		withdrawals.GET("/stream", withdrawalHandlers.StreamWithdrawals)
		withdrawals.GET("/:withdrawalId", withdrawalHandlers.GetWithdrawal)
		withdrawals.DELETE("/:withdrawalId", withdrawalHandlers.CancelWithdrawal)
	}

	walletGroup := v1.Group("/wallet")
	{
		walletGroup.GET("/balance", walletHandlers.GetBalance)
		walletGroup.GET("/transactions", walletHandlers.GetTransactions)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.GET("/withdrawals", adminHandlers.GetWithdrawals)
		admin.GET("/withdrawals/:withdrawalId", adminHandlers.GetWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/approve", adminHandlers.ApproveWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/advance", adminHandlers.AdvanceWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/reject", adminHandlers.RejectWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/refund", adminHandlers.RefundWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/cancel", adminHandlers.CancelWithdrawal)
		admin.POST("/withdrawals/:withdrawalId/reverse", adminHandlers.ReverseWithdrawalDebit)
		admin.POST("/withdrawals/:withdrawalId/sent", adminHandlers.MarkSentToBlockchain)
		admin.POST("/withdrawals/:withdrawalId/hash", adminHandlers.AttachTransactionHash)
		admin.POST("/withdrawals/:withdrawalId/settlement", adminHandlers.GenerateSettlementDocument)
	}

	return router
}
