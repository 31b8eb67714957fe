package api

import (
	"net/http"

	"bike-marketplace/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) walletBalance(c *gin.Context) {
	wallet, err := h.Wallets.Balance(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, wallet, "")
}

func (h *Handler) walletTransactions(c *gin.Context) {
	txs, page, err := h.Wallets.Transactions(c.Request.Context(), principal(c),
		queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	okPage(c, txs, page)
}

func (h *Handler) withdrawPreview(c *gin.Context) {
	quote, err := h.Wallets.Preview(queryInt64(c, "amount"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, quote, "")
}

func (h *Handler) deposit(c *gin.Context) {
	var req service.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	wallet, err := h.Wallets.Deposit(c.Request.Context(), principal(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, wallet, "Deposit credited")
}

func (h *Handler) withdraw(c *gin.Context) {
	var req service.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	w, err := h.Wallets.Withdraw(c.Request.Context(), principal(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, w, "Withdrawal requested")
}

func (h *Handler) listWithdrawals(c *gin.Context) {
	ws, page, err := h.Wallets.Withdrawals(c.Request.Context(), principal(c),
		c.Query("status"), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	okPage(c, ws, page)
}

func (h *Handler) processWithdrawal(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	var req service.ProcessWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	w, err := h.Wallets.ProcessWithdrawal(c.Request.Context(), principal(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, w, "Withdrawal "+w.Status)
}

func (h *Handler) listNotifications(c *gin.Context) {
	notes, err := h.Notifications.List(c.Request.Context(), principal(c), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, notes, "")
}
