package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []string{
	OrderStatusCreated,
	OrderStatusEscrowLocked,
	OrderStatusInInspection,
	OrderStatusInspectionPassed,
	OrderStatusShipping,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusRejected,
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from       string
		inspection bool
		allowed    []string
	}{
		{OrderStatusCreated, true, []string{OrderStatusEscrowLocked, OrderStatusRejected}},
		{OrderStatusEscrowLocked, true, []string{OrderStatusInInspection, OrderStatusRejected}},
		{OrderStatusEscrowLocked, false, []string{OrderStatusShipping, OrderStatusRejected}},
		{OrderStatusInInspection, true, []string{OrderStatusInspectionPassed, OrderStatusRejected}},
		{OrderStatusInspectionPassed, true, []string{OrderStatusShipping, OrderStatusRejected}},
		{OrderStatusShipping, true, []string{OrderStatusDelivered}},
		{OrderStatusDelivered, true, []string{OrderStatusCompleted}},
		{OrderStatusCompleted, true, nil},
		{OrderStatusRejected, true, nil},
	}

	for _, tt := range tests {
		order := &Order{Status: tt.from, InspectionRequired: tt.inspection}
		assert.ElementsMatch(t, tt.allowed, order.NextStatuses(), "from %s", tt.from)

		for _, target := range allStatuses {
			want := false
			for _, a := range tt.allowed {
				if a == target {
					want = true
				}
			}
			assert.Equal(t, want, order.CanTransitionTo(target), "%s -> %s", tt.from, target)
		}
	}
}

func TestCanTransitionTo_UnknownStatus(t *testing.T) {
	order := &Order{Status: OrderStatusCreated}
	assert.False(t, order.CanTransitionTo("SHIPPED"))
	assert.False(t, IsValidOrderStatus("SHIPPED"))
}

func TestCanRequestTransition(t *testing.T) {
	order := &Order{BuyerID: 1, SellerID: 2}

	buyer := &Principal{UserID: 1, Role: RoleBuyer}
	otherBuyer := &Principal{UserID: 9, Role: RoleBuyer}
	seller := &Principal{UserID: 2, Role: RoleSeller}
	inspector := &Principal{UserID: 3, Role: RoleInspector}
	admin := &Principal{UserID: 4, Role: RoleAdmin}

	assert.True(t, order.CanRequestTransition(buyer, OrderStatusEscrowLocked))
	assert.True(t, order.CanRequestTransition(buyer, OrderStatusDelivered))
	assert.False(t, order.CanRequestTransition(otherBuyer, OrderStatusDelivered))
	assert.False(t, order.CanRequestTransition(buyer, OrderStatusShipping))
	assert.False(t, order.CanRequestTransition(buyer, OrderStatusCompleted))

	assert.True(t, order.CanRequestTransition(seller, OrderStatusShipping))
	assert.False(t, order.CanRequestTransition(seller, OrderStatusDelivered))

	assert.True(t, order.CanRequestTransition(inspector, OrderStatusInInspection))
	assert.False(t, order.CanRequestTransition(inspector, OrderStatusInspectionPassed))

	for _, s := range allStatuses {
		assert.True(t, order.CanRequestTransition(admin, s))
	}
	assert.False(t, order.CanRequestTransition(nil, OrderStatusDelivered))
}

func TestCanView(t *testing.T) {
	order := &Order{BuyerID: 1, SellerID: 2}

	assert.True(t, order.CanView(&Principal{UserID: 1, Role: RoleBuyer}))
	assert.True(t, order.CanView(&Principal{UserID: 2, Role: RoleSeller}))
	assert.True(t, order.CanView(&Principal{UserID: 50, Role: RoleInspector}))
	assert.False(t, order.CanView(&Principal{UserID: 50, Role: RoleBuyer}))
}

func TestPlanFor(t *testing.T) {
	assert.Equal(t, 3, PlanFor(PlanPremium).PriorityLevel)
	assert.Equal(t, 24, PlanFor(PlanPremium).ApprovalTimeHours)
	assert.Equal(t, PlanFree, PlanFor("UNKNOWN").Type)
}

func TestValidationError(t *testing.T) {
	var verr ValidationError
	assert.Nil(t, verr.OrNil())

	verr.Add("amount", "must be at least 50000")
	verr.Add("amount", "ignored")
	verr.Add("bankName", "is required")

	assert.Error(t, verr.OrNil())
	assert.Equal(t, "validation failed: amount: must be at least 50000; bankName: is required", verr.Error())
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Total: 21, Page: 2, Limit: 10, Pages: 3}, NewPagination(21, 2, 10))
	assert.Equal(t, 0, NewPagination(0, 1, 10).Pages)
}
