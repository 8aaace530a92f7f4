package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/escrow/internal/authorization"
	"github.com/smallbiznis/escrow/internal/gateway"
	obscontext "github.com/smallbiznis/escrow/internal/observability/context"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
)

var ErrNotFound = errors.New("not_found")

type apiError struct {
	status  int
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code }

func newValidationError(field, code, message string) error {
	return &apiError{status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() error {
	return &apiError{status: http.StatusBadRequest, Code: "invalid_request", Message: "malformed request body"}
}

// AbortWithError maps a domain error onto an HTTP response. Balance and
// state-machine rejections are client errors, never 500s.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.status, gin.H{"error": api})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, txdomain.ErrTransactionNotFound),
		errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, refunddomain.ErrNotFound),
		errors.Is(err, withdrawaldomain.ErrNotFound):
		status = http.StatusNotFound

	case errors.Is(err, walletdomain.ErrInsufficientBalance),
		errors.Is(err, refunddomain.ErrInvalidStateTransition),
		errors.Is(err, withdrawaldomain.ErrInvalidStateTransition),
		errors.Is(err, txdomain.ErrInvalidState),
		errors.Is(err, refunddomain.ErrAlreadyRequested),
		errors.Is(err, txdomain.ErrOrderAlreadyLinked):
		status = http.StatusConflict

	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, withdrawaldomain.ErrNotOwner):
		status = http.StatusForbidden

	case errors.Is(err, gateway.ErrInvalidSignature),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidRole):
		status = http.StatusUnauthorized

	case errors.Is(err, gateway.ErrUnknownProvider),
		errors.Is(err, gateway.ErrInvalidPayload),
		errors.Is(err, txdomain.ErrNoOrders),
		errors.Is(err, txdomain.ErrOrderNotPayable),
		errors.Is(err, txdomain.ErrAmountMismatch),
		errors.Is(err, refunddomain.ErrOrderNotRefundable),
		errors.Is(err, refunddomain.ErrWindowExpired),
		errors.Is(err, refunddomain.ErrDescriptionTooShort),
		errors.Is(err, refunddomain.ErrInvalidAmount),
		errors.Is(err, refunddomain.ErrInvalidRequester),
		errors.Is(err, refunddomain.ErrRejectReasonRequired),
		errors.Is(err, withdrawaldomain.ErrAmountBelowMinimum),
		errors.Is(err, withdrawaldomain.ErrAmountAboveMaximum),
		errors.Is(err, withdrawaldomain.ErrBankDetailsRequired),
		errors.Is(err, withdrawaldomain.ErrReasonRequired),
		errors.Is(err, walletdomain.ErrInvalidOwner),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, platformdomain.ErrInvalidCommissionRate),
		errors.Is(err, platformdomain.ErrInvalidHoldingDays),
		errors.Is(err, platformdomain.ErrInvalidWithdrawalMin),
		errors.Is(err, platformdomain.ErrInvalidWithdrawalMax),
		errors.Is(err, platformdomain.ErrInvalidResponseHours),
		errors.Is(err, platformdomain.ErrInvalidRefundDays),
		errors.Is(err, platformdomain.ErrInvalidThreshold):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		// Opaque body; the request id lets support correlate with logs.
		c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
			"code":       "internal_error",
			"message":    "internal error",
			"request_id": obscontext.RequestIDFromGin(c),
		}})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
		"code":    err.Error(),
		"message": err.Error(),
	}})
}
