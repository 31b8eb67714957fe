package api

import (
	"net/http"

	"bike-marketplace/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, created, err := h.Orders.CreateOrder(c.Request.Context(), principal(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	if !created {
		ok(c, http.StatusOK, order, "Order already exists")
		return
	}
	ok(c, http.StatusCreated, order, "Order created")
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, page, err := h.Orders.ListOrders(c.Request.Context(), principal(c),
		c.Query("status"), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	okPage(c, orders, page)
}

// getOrder returns the order with its timeline
func (h *Handler) getOrder(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, order, "")
}

func (h *Handler) transitionOrder(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.Orders.Transition(c.Request.Context(), principal(c), id, req.Status, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, order, "Order status updated")
}

func (h *Handler) releasePayout(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	order, err := h.Orders.ReleasePayout(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, order, "Payout released")
}

func (h *Handler) submitInspection(c *gin.Context) {
	var req service.SubmitInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inspection, err := h.Inspections.Submit(c.Request.Context(), principal(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, inspection, "Inspection submitted")
}

func (h *Handler) pendingInspections(c *gin.Context) {
	orders, err := h.Inspections.Pending(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, orders, "")
}

func (h *Handler) inspectionChecklist(c *gin.Context) {
	id, valid := pathID(c, "orderId")
	if !valid {
		return
	}

	checklist, err := h.Inspections.Checklist(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, checklist, "")
}

func (h *Handler) getInspection(c *gin.Context) {
	id, valid := pathID(c, "orderId")
	if !valid {
		return
	}

	inspection, err := h.Inspections.GetByOrder(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, inspection, "")
}
