package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/auth"
	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// distributeRequest selects which contract class to run.
type distributeRequest struct {
	ContractClass string `json:"contractClass" binding:"required"`
}

// handleDistribute triggers a profit distribution run for a contract
// class. A run still inside its cooldown window is rejected with the
// remaining wait so the dashboard can show a countdown.
func (s *Server) handleDistribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	class, err := ledger.ParseContractClass(req.ContractClass)
	if err != nil {
		s.respondError(c, err)
		return
	}

	summary, err := s.orchestrator.Run(c.Request.Context(), class)
	if err != nil {
		var cd *ledger.OnCooldownError
		if errors.As(err, &cd) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"onCooldown":       true,
				"remainingSeconds": int(cd.Remaining.Seconds()),
				"contractClass":    string(class),
			})
			return
		}
		s.respondError(c, err)
		return
	}

	s.lastRuns.Store(c.Request.Context(), summary)

	c.JSON(http.StatusOK, summary)
}

// handleLastRun serves the cached summary of the most recent run for a
// class, so the dashboard can refresh without replaying run history.
func (s *Server) handleLastRun(c *gin.Context) {
	class, err := ledger.ParseContractClass(c.DefaultQuery("class", string(ledger.ClassInvestment)))
	if err != nil {
		s.respondError(c, err)
		return
	}

	summary, ok := s.lastRuns.Last(c.Request.Context(), class)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no recent run cached for this class",
		})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleListRuns returns recent distribution runs for a class.
func (s *Server) handleListRuns(c *gin.Context) {
	class, err := ledger.ParseContractClass(c.DefaultQuery("class", string(ledger.ClassInvestment)))
	if err != nil {
		s.respondError(c, err)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	runs, err := s.repo.ListRuns(c.Request.Context(), class, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// handleAdminListWithdrawals returns withdrawal requests by status.
func (s *Server) handleAdminListWithdrawals(c *gin.Context) {
	status, err := ledger.ParseWithdrawalStatus(c.DefaultQuery("status", string(ledger.WithdrawalPending)))
	if err != nil {
		s.respondError(c, err)
		return
	}

	list, err := s.withdrawals.ListByStatus(c.Request.Context(), status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list, "count": len(list)})
}

// adminWithdrawalRequest moves a withdrawal through its state machine.
type adminWithdrawalRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (s *Server) handleAdminWithdrawal(c *gin.Context) {
	var req adminWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	target, err := ledger.ParseWithdrawalStatus(req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}

	w, err := s.withdrawals.Transition(c.Request.Context(), c.Param("id"), target, auth.UserID(c), req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.balances.Invalidate(c.Request.Context(), w.OwnerID)

	c.JSON(http.StatusOK, w)
}

// adminBalanceRequest credits or debits a single balance component.
type adminBalanceRequest struct {
	OwnerID   string  `json:"ownerId" binding:"required"`
	Component string  `json:"component" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Direction string  `json:"direction" binding:"required"`
	Notes     string  `json:"notes"`
}

func (s *Server) handleAdminAdjustBalance(c *gin.Context) {
	var req adminBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	component, err := ledger.ParseComponent(req.Component)
	if err != nil {
		s.respondError(c, err)
		return
	}

	direction, err := ledger.ParseDirection(req.Direction)
	if err != nil {
		s.respondError(c, err)
		return
	}

	kind := ledger.TxAdminFunding
	if direction == ledger.DirectionDebit {
		kind = ledger.TxAdminDeduction
	}

	txn, err := s.repo.AdjustBalance(c.Request.Context(), ledger.Adjustment{
		OwnerID:     req.OwnerID,
		Component:   component,
		Amount:      decimal.NewFromFloat(req.Amount).Round(2),
		Direction:   direction,
		Kind:        kind,
		ReferenceID: auth.UserID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.balances.Invalidate(c.Request.Context(), req.OwnerID)
	s.eventBus.PublishBalanceUpdate(req.OwnerID, string(kind))

	c.JSON(http.StatusOK, txn)
}
