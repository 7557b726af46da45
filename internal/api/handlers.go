package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/auth"
	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// respondError maps ledger error types onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var valErr *ledger.ValidationError
	var fundsErr *ledger.InsufficientFundsError

	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": valErr.Error(),
		})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "resource not found",
		})
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient_funds",
			"message":   fundsErr.Error(),
			"requested": fundsErr.Requested.StringFixed(2),
			"available": fundsErr.Available.StringFixed(2),
		})
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "unexpected server error",
		})
	}
}

// handleGetBalance returns the caller's balance snapshot.
func (s *Server) handleGetBalance(c *gin.Context) {
	balance, err := s.balances.Get(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// handleGetTransactions returns the caller's recent transactions.
func (s *Server) handleGetTransactions(c *gin.Context) {
	limit := 0
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

	txns, err := s.repo.ListTransactions(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// fundContractRequest is the payload for opening an investment or trade.
type fundContractRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Rate     float64 `json:"rate" binding:"required,gt=0"`
	Duration int     `json:"duration" binding:"required,gt=0"`
}

func (s *Server) handleFundInvestment(c *gin.Context) {
	s.fundContract(c, ledger.ClassInvestment)
}

func (s *Server) handleFundTrade(c *gin.Context) {
	s.fundContract(c, ledger.ClassLiveTrade)
}

// fundContract debits the caller's deposit balance and opens a contract.
func (s *Server) fundContract(c *gin.Context, class ledger.ContractClass) {
	var req fundContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	ownerID := auth.UserID(c)
	contract := &ledger.Contract{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Class:     class,
		Principal: decimal.NewFromFloat(req.Amount).Round(2),
		Rate:      decimal.NewFromFloat(req.Rate),
		Duration:  req.Duration,
		StartAt:   time.Now().UTC(),
		Status:    ledger.ContractActive,
	}

	txn, err := s.repo.FundContract(c.Request.Context(), contract)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.balances.Invalidate(c.Request.Context(), ownerID)
	s.eventBus.PublishContractFunded(contract.ID, ownerID, string(class), contract.Principal.StringFixed(2))
	s.referrals.OnContractFunded(c.Request.Context(), contract)

	c.JSON(http.StatusCreated, gin.H{
		"contract":    contract,
		"transaction": txn,
	})
}

func (s *Server) handleListInvestments(c *gin.Context) {
	s.listContracts(c, ledger.ClassInvestment)
}

func (s *Server) handleListTrades(c *gin.Context) {
	s.listContracts(c, ledger.ClassLiveTrade)
}

func (s *Server) listContracts(c *gin.Context, class ledger.ContractClass) {
	contracts, err := s.repo.ListContractsByOwner(c.Request.Context(), auth.UserID(c), class)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts, "count": len(contracts)})
}

// handleGetContract returns a single contract owned by the caller.
func (s *Server) handleGetContract(c *gin.Context) {
	contract, err := s.repo.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	if contract.OwnerID != auth.UserID(c) && !c.GetBool(auth.ContextKeyIsAdmin) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "resource not found",
		})
		return
	}

	c.JSON(http.StatusOK, contract)
}

// createWithdrawalRequest is the payload for requesting a withdrawal.
type createWithdrawalRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Method string  `json:"method" binding:"required"`
}

func (s *Server) handleCreateWithdrawal(c *gin.Context) {
	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	w, err := s.withdrawals.Request(c.Request.Context(), auth.UserID(c), decimal.NewFromFloat(req.Amount), req.Method)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

func (s *Server) handleListWithdrawals(c *gin.Context) {
	list, err := s.withdrawals.ListByOwner(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list, "count": len(list)})
}
