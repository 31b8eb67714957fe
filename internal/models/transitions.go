package models

// orderEdges is the permitted order transition graph. ESCROW_LOCKED has two
// successors; which one applies depends on InspectionRequired.
var orderEdges = map[string][]string{
	OrderStatusCreated:          {OrderStatusEscrowLocked, OrderStatusRejected},
	OrderStatusEscrowLocked:     {OrderStatusInInspection, OrderStatusShipping, OrderStatusRejected},
	OrderStatusInInspection:     {OrderStatusInspectionPassed, OrderStatusRejected},
	OrderStatusInspectionPassed: {OrderStatusShipping, OrderStatusRejected},
	OrderStatusShipping:         {OrderStatusDelivered},
	OrderStatusDelivered:        {OrderStatusCompleted},
}

// IsValidOrderStatus reports whether s is a known order status
func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusCreated, OrderStatusEscrowLocked, OrderStatusInInspection,
		OrderStatusInspectionPassed, OrderStatusShipping, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusRejected:
		return true
	}
	return false
}

// NextStatuses lists the statuses the order may move to from its current one
func (o *Order) NextStatuses() []string {
	var next []string
	for _, s := range orderEdges[o.Status] {
		if o.Status == OrderStatusEscrowLocked {
			if s == OrderStatusInInspection && !o.InspectionRequired {
				continue
			}
			if s == OrderStatusShipping && o.InspectionRequired {
				continue
			}
		}
		next = append(next, s)
	}
	return next
}

// CanTransitionTo reports whether target is a direct successor of the current status
func (o *Order) CanTransitionTo(target string) bool {
	for _, s := range o.NextStatuses() {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order can no longer change
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusRejected
}

// CanRequestTransition reports whether the caller may ask for target on this
// order. Buyer and seller actions are tied to the caller's relation to the
// order; INSPECTION_PASSED is normally reached through inspection submission.
func (o *Order) CanRequestTransition(p *Principal, target string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	switch target {
	case OrderStatusEscrowLocked, OrderStatusDelivered:
		return o.BuyerID == p.UserID
	case OrderStatusShipping:
		return o.SellerID == p.UserID
	case OrderStatusInInspection:
		return p.Role == RoleInspector
	}
	return false
}

// CanView reports whether the caller may read the order
func (o *Order) CanView(p *Principal) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case RoleAdmin, RoleInspector:
		return true
	}
	return o.BuyerID == p.UserID || o.SellerID == p.UserID
}
