package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"slumber/pkg/logger"
)

// AccountHandler handles credit balances
type AccountHandler struct {
	accounts AccountService
}

// NewAccountHandler creates account handler
func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type depositRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Description string  `json:"description"`
}

// Get returns the balance of an account
// @Summary Get account
// @Tags Accounts
// @Param id path string true "Account id"
// @Router /api/v1/accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	acct, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if acct == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, acct)
}

// Deposit adds credits, creating the account on first use
// @Summary Deposit credits
// @Tags Accounts
// @Accept json
// @Param id path string true "Account id"
// @Router /api/v1/accounts/{id}/deposit [post]
func (h *AccountHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Description == "" {
		req.Description = "deposit"
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if err := h.accounts.Ensure(ctx, id, 0); err != nil {
		writeError(c, err)
		return
	}
	balance, err := h.accounts.Deposit(ctx, id, req.Amount, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}

	logger.InfoCtx(ctx, "account %s deposited %.2f, balance %.2f", id, req.Amount, balance)
	c.JSON(http.StatusOK, gin.H{"id": id, "credits": balance})
}

// Transactions lists the ledger of an account, newest first
// @Summary List account transactions
// @Tags Accounts
// @Param id path string true "Account id"
// @Param limit query int false "Max entries"
// @Router /api/v1/accounts/{id}/transactions [get]
func (h *AccountHandler) Transactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	txs, err := h.accounts.Transactions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
