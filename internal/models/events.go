package models

import "time"

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypePayoutReleased      = "PAYOUT_RELEASED"
	EventTypeEscrowRefunded      = "ESCROW_REFUNDED"
	EventTypeInspectionSubmitted = "INSPECTION_SUBMITTED"
	EventTypeListingSubmitted    = "LISTING_SUBMITTED"
	EventTypeListingModerated    = "LISTING_MODERATED"
	EventTypeWithdrawalRequested = "WITHDRAWAL_REQUESTED"
	EventTypeWithdrawalProcessed = "WITHDRAWAL_PROCESSED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a buyer commits to a purchase
type OrderCreatedEvent struct {
	BaseEvent
	OrderID   int64 `json:"order_id"`
	BuyerID   int64 `json:"buyer_id"`
	SellerID  int64 `json:"seller_id"`
	ListingID int64 `json:"listing_id"`
	Amount    int64 `json:"amount"`
}

// OrderStatusChangedEvent published after every successful transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	BuyerID    int64  `json:"buyer_id"`
	SellerID   int64  `json:"seller_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    int64  `json:"actor_id"`
	Note       string `json:"note,omitempty"`
}

// PayoutReleasedEvent published when escrow funds reach the seller
type PayoutReleasedEvent struct {
	BaseEvent
	OrderID      int64 `json:"order_id"`
	SellerID     int64 `json:"seller_id"`
	SellerAmount int64 `json:"seller_amount"`
	PlatformFee  int64 `json:"platform_fee"`
}

// EscrowRefundedEvent published when a hold is returned to the buyer
type EscrowRefundedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	BuyerID int64 `json:"buyer_id"`
	Amount  int64 `json:"amount"`
}

// InspectionSubmittedEvent published when an inspector files a checklist
type InspectionSubmittedEvent struct {
	BaseEvent
	OrderID      int64   `json:"order_id"`
	InspectionID int64   `json:"inspection_id"`
	BuyerID      int64   `json:"buyer_id"`
	SellerID     int64   `json:"seller_id"`
	Verdict      string  `json:"verdict"`
	Score        float64 `json:"score"`
	Grade        string  `json:"grade"`
}

// ListingModeratedEvent published on submission and on admin decisions
type ListingModeratedEvent struct {
	BaseEvent
	ListingID int64  `json:"listing_id"`
	SellerID  int64  `json:"seller_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// WithdrawalEvent published when a withdrawal is requested or processed
type WithdrawalEvent struct {
	BaseEvent
	WithdrawalID int64  `json:"withdrawal_id"`
	UserID       int64  `json:"user_id"`
	Amount       int64  `json:"amount"`
	Fee          int64  `json:"fee"`
	Status       string `json:"status"`
}
