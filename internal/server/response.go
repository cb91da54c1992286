package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/condolabs/condoledger/internal/budget"
	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	plandomain "github.com/condolabs/condoledger/internal/plan/domain"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// AbortWithError maps domain errors onto HTTP statuses and writes the
// standard error envelope.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var capacity *subscriptiondomain.CapacityExceededError
	var singleTenant *subscriptiondomain.SingleTenantViolationError
	var tier *plandomain.TierNotFoundError

	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrUnitNotFound),
		errors.Is(err, tenantdomain.ErrAttachmentNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, feedomain.ErrFeeNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.As(err, &capacity),
		errors.As(err, &singleTenant),
		errors.Is(err, tenantdomain.ErrTenantAlreadyBound),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrSubscriptionInactive),
		errors.Is(err, subscriptiondomain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, subscriptiondomain.ErrInvalidStatus),
		errors.Is(err, feedomain.ErrInvalidPeriod),
		errors.Is(err, feedomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, budget.ErrNoApprovedBudget):
		// A missing approved budget is a caller-visible workflow state,
		// not an internal fault.
		return http.StatusUnprocessableEntity
	case errors.As(err, &tier),
		errors.Is(err, subscriptiondomain.ErrIntegrity):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
