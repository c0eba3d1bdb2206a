package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invest-portal/portal_service/internal/domain/entities"
)

// Error codes surfaced to API clients
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeBelowMinimum        = "AMOUNT_BELOW_MINIMUM"
	ErrCodeAboveMaximum        = "AMOUNT_ABOVE_MAXIMUM"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidDestination  = "INVALID_DESTINATION"
	ErrCodeStateConflict       = "STATE_CONFLICT"
	ErrCodeWithdrawalNotFound  = "WITHDRAWAL_NOT_FOUND"
	ErrCodeWrongDestination    = "WRONG_DESTINATION_TYPE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Code: code, Message: message})
}

// RespondUnauthorized sends an unauthorized error
func RespondUnauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// RespondForbidden sends a forbidden error
func RespondForbidden(c *gin.Context, message string) {
	RespondError(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// RespondBadRequest sends a bad request error
func RespondBadRequest(c *gin.Context, code, message string) {
	RespondError(c, http.StatusBadRequest, code, message)
}

// RespondNotFound sends a not found error
func RespondNotFound(c *gin.Context, code, message string) {
	RespondError(c, http.StatusNotFound, code, message)
}

// RespondConflict sends a state-conflict error
func RespondConflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, ErrCodeStateConflict, message)
}

// RespondInternalError sends a generic internal error. No partial state is
// exposed; the client is told to retry.
func RespondInternalError(c *gin.Context) {
	RespondError(c, http.StatusInternalServerError, ErrCodeInternalError,
		"Something went wrong, please try again")
}

// RespondSuccess sends a success response with data
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// RespondDomainError translates a domain error into the right HTTP response.
// Validation and state-conflict errors carry their specific reason;
// persistence errors collapse to a generic retry message.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entities.ErrAmountNotPositive):
		RespondBadRequest(c, ErrCodeInvalidAmount, err.Error())
	case errors.Is(err, entities.ErrAmountBelowMinimum):
		RespondBadRequest(c, ErrCodeBelowMinimum, err.Error())
	case errors.Is(err, entities.ErrAmountAboveMaximum):
		RespondBadRequest(c, ErrCodeAboveMaximum, err.Error())
	case errors.Is(err, entities.ErrInsufficientFunds),
		errors.Is(err, entities.ErrInsufficientFundsAtApproval):
		RespondBadRequest(c, ErrCodeInsufficientFunds, err.Error())
	case errors.Is(err, entities.ErrInvalidDestination):
		RespondBadRequest(c, ErrCodeInvalidDestination, err.Error())
	case errors.Is(err, entities.ErrWrongDestinationType):
		RespondBadRequest(c, ErrCodeWrongDestination, err.Error())
	case errors.Is(err, entities.ErrInvalidStatusTransition),
		errors.Is(err, entities.ErrInvalidWithdrawalStatus),
		errors.Is(err, entities.ErrDuplicateDebit):
		RespondConflict(c, err.Error())
	case errors.Is(err, entities.ErrWithdrawalNotFound):
		RespondNotFound(c, ErrCodeWithdrawalNotFound, "Withdrawal not found")
	case errors.Is(err, entities.ErrBalanceNotFound):
		RespondNotFound(c, ErrCodeWithdrawalNotFound, "Investor balance not found")
	default:
		RespondInternalError(c)
	}
}

// GetUserID extracts and validates the authenticated user id from context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("user ID not found in context")
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid user ID type in context")
	}
}

// ParseIntQuery parses a query parameter to int with a default value
func ParseIntQuery(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return defaultVal
}
