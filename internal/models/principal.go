package models

// Roles
const (
	RoleBuyer     = "BUYER"
	RoleSeller    = "SELLER"
	RoleInspector = "INSPECTOR"
	RoleAdmin     = "ADMIN"
)

// Principal is the authenticated caller resolved from a session token
type Principal struct {
	UserID   int64  `json:"userId"`
	Role     string `json:"role"`
	PlanType string `json:"planType,omitempty"`
}

// IsAdmin reports whether the caller has the admin role
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Seller subscription plans
const (
	PlanFree    = "FREE"
	PlanBasic   = "BASIC"
	PlanPremium = "PREMIUM"
)

// Plan describes the moderation priority granted by a subscription tier
type Plan struct {
	Type              string
	PriorityLevel     int
	ApprovalTimeHours int
}

var plans = map[string]Plan{
	PlanFree:    {Type: PlanFree, PriorityLevel: 1, ApprovalTimeHours: 72},
	PlanBasic:   {Type: PlanBasic, PriorityLevel: 2, ApprovalTimeHours: 48},
	PlanPremium: {Type: PlanPremium, PriorityLevel: 3, ApprovalTimeHours: 24},
}

// PlanFor returns the plan for a type, falling back to FREE
func PlanFor(planType string) Plan {
	if p, ok := plans[planType]; ok {
		return p
	}
	return plans[PlanFree]
}
