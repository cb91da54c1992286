package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	feeservice "github.com/condolabs/condoledger/internal/fee/service"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
)

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

type startTrialRequest struct {
	OwnerID       string `json:"owner_id" binding:"required"`
	PlanID        string `json:"plan_id" binding:"required"`
	TrialDays     int    `json:"trial_days"`
	ChargeMinimum *bool  `json:"charge_minimum"`
	ActorID       string `json:"actor_id"`
}

func (s *Server) StartTrial(c *gin.Context) {
	var body startTrialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, err := snowflake.ParseString(body.OwnerID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_owner_id"})
		return
	}
	planID, err := snowflake.ParseString(body.PlanID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_plan_id"})
		return
	}
	actorID, _ := snowflake.ParseString(body.ActorID)

	chargeMinimum := true
	if body.ChargeMinimum != nil {
		chargeMinimum = *body.ChargeMinimum
	}
	sub, err := s.ledger.StartTrial(c.Request.Context(), subscriptiondomain.StartTrialRequest{
		OwnerID:       ownerID,
		PlanID:        planID,
		TrialDays:     body.TrialDays,
		ChargeMinimum: chargeMinimum,
		ActorID:       actorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

type attachTenantRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	ActorID  string `json:"actor_id"`
}

func (s *Server) AttachTenant(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body attachTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenantID, err := snowflake.ParseString(body.TenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_tenant_id"})
		return
	}
	actorID, _ := snowflake.ParseString(body.ActorID)

	if err := s.ledger.AttachTenant(c.Request.Context(), subscriptiondomain.AttachTenantRequest{
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		ActorID:        actorID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	sub, err := s.ledger.GetByID(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, sub)
}

type detachTenantRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (s *Server) DetachTenant(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	var body detachTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actorID, _ := snowflake.ParseString(body.ActorID)

	if err := s.ledger.DetachTenant(c.Request.Context(), subscriptiondomain.DetachTenantRequest{
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		ActorID:        actorID,
		Reason:         body.Reason,
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	sub, err := s.ledger.GetByID(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, sub)
}

func (s *Server) Recalculate(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	usedLicenses, err := s.ledger.Recalculate(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"subscription_id": subscriptionID.String(), "used_licenses": usedLicenses})
}

func (s *Server) Expire(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.ledger.ExpireSubscription(c.Request.Context(), subscriptionID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"subscription_id": subscriptionID.String(), "status": subscriptiondomain.SubscriptionStatusExpired})
}

func (s *Server) Unlock(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.ledger.UnlockAfterPayment(c.Request.Context(), subscriptionID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"subscription_id": subscriptionID.String(), "status": subscriptiondomain.SubscriptionStatusActive})
}

type generateFeesRequest struct {
	Year   int  `json:"year" binding:"required"`
	Month  int  `json:"month" binding:"required"`
	DryRun bool `json:"dry_run"`
}

func (s *Server) GenerateFees(c *gin.Context) {
	tenantID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body generateFeesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.generator.GenerateRegularFees(c.Request.Context(), feeservice.GenerateRegularRequest{
		TenantID: tenantID,
		Year:     body.Year,
		Month:    body.Month,
		DryRun:   body.DryRun,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

type generateExtraFeesRequest struct {
	Year        int      `json:"year" binding:"required"`
	Months      []int    `json:"months" binding:"required"`
	TotalAmount string   `json:"total_amount" binding:"required"`
	Label       string   `json:"label" binding:"required"`
	UnitIDs     []string `json:"unit_ids"`
	DryRun      bool     `json:"dry_run"`
}

func (s *Server) GenerateExtraFees(c *gin.Context) {
	tenantID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body generateExtraFeesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total, err := decimal.NewFromString(body.TotalAmount)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_total_amount"})
		return
	}
	unitIDs := make([]snowflake.ID, 0, len(body.UnitIDs))
	for _, raw := range body.UnitIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_unit_id"})
			return
		}
		unitIDs = append(unitIDs, id)
	}
	result, err := s.generator.GenerateExtraFees(c.Request.Context(), feeservice.GenerateExtraRequest{
		TenantID:    tenantID,
		Year:        body.Year,
		Months:      body.Months,
		TotalAmount: total,
		Label:       body.Label,
		UnitIDs:     unitIDs,
		DryRun:      body.DryRun,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

type applyPaymentRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (s *Server) ApplyPayment(c *gin.Context) {
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body applyPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	result, err := s.payments.Apply(c.Request.Context(), paymentdomain.ApplyRequest{
		UnitID: unitID,
		Amount: amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

func (s *Server) GetBalance(c *gin.Context) {
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	balance, err := s.payments.GetOutstandingBalance(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"unit_id": unitID.String(), "outstanding": balance})
}
