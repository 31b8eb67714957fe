package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Order represents one purchase of a listing
type Order struct {
	ID        int64  `db:"id" json:"id"`
	BuyerID   int64  `db:"buyer_id" json:"buyerId"`
	SellerID  int64  `db:"seller_id" json:"sellerId"`
	ListingID int64  `db:"listing_id" json:"listingId"`
	Status    string `db:"status" json:"status"`
	Amount    int64  `db:"amount" json:"amount"`

	Financials `json:"financials"`
	Escrow     `json:"escrowStatus"`

	InspectionRequired bool            `db:"inspection_required" json:"inspectionRequired"`
	IdempotencyKey     string          `db:"idempotency_key" json:"-"`
	Timeline           []TimelineEntry `db:"-" json:"timeline"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}

// Financials holds amounts derived from the order amount at creation
type Financials struct {
	PlatformFee  int64 `db:"platform_fee" json:"platformFee"`
	SellerAmount int64 `db:"seller_amount" json:"sellerAmount"`
}

// Escrow is the hold placed on buyer funds for an order
type Escrow struct {
	EscrowState string `db:"escrow_status" json:"status"`
	AmountHeld  int64  `db:"escrow_amount_held" json:"amountHeld"`
}

// TimelineEntry is one append-only audit record of an order status change
type TimelineEntry struct {
	ID        int64     `db:"id" json:"-"`
	OrderID   int64     `db:"order_id" json:"-"`
	Status    string    `db:"status" json:"status"`
	ActorID   int64     `db:"actor_id" json:"actorId,omitempty"`
	Note      string    `db:"note" json:"note,omitempty"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
}

// Order statuses
const (
	OrderStatusCreated          = "CREATED"
	OrderStatusEscrowLocked     = "ESCROW_LOCKED"
	OrderStatusInInspection     = "IN_INSPECTION"
	OrderStatusInspectionPassed = "INSPECTION_PASSED"
	OrderStatusShipping         = "SHIPPING"
	OrderStatusDelivered        = "DELIVERED"
	OrderStatusCompleted        = "COMPLETED"
	OrderStatusRejected         = "REJECTED"
)

// Escrow statuses
const (
	EscrowStatusNone     = "NONE"
	EscrowStatusHeld     = "HELD"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
)

// Inspection is the checklist submitted by an inspector for one order
type Inspection struct {
	ID             int64       `db:"id" json:"id"`
	OrderID        int64       `db:"order_id" json:"orderId"`
	InspectorID    int64       `db:"inspector_id" json:"inspectorId"`
	Checkpoints    Checkpoints `db:"checkpoints" json:"checkpoints"`
	OverallVerdict string      `db:"overall_verdict" json:"overallVerdict"`
	OverallScore   float64     `db:"overall_score" json:"overallScore"`
	Grade          string      `db:"grade" json:"grade"`
	InspectorNote  string      `db:"inspector_note" json:"inspectorNote,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
}

// Checkpoint is the outcome for one inspected component
type Checkpoint struct {
	Component      string   `json:"component"`
	Status         string   `json:"status"`
	Observation    string   `json:"observation,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	EvidenceImages []string `json:"evidenceImages"`
}

// Checkpoints is stored as a JSONB column
type Checkpoints []Checkpoint

// Value implements driver.Valuer
func (c Checkpoints) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *Checkpoints) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Checkpoint statuses
const (
	CheckpointPass = "PASS"
	CheckpointWarn = "WARN"
	CheckpointFail = "FAIL"
)

// Severities
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityCritical = "CRITICAL"
)

// Verdicts
const (
	VerdictPassed            = "PASSED"
	VerdictFailed            = "FAILED"
	VerdictSuggestAdjustment = "SUGGEST_ADJUSTMENT"
)

// Listing represents a bicycle offered for sale
type Listing struct {
	ID                int64      `db:"id" json:"id"`
	SellerID          int64      `db:"seller_id" json:"sellerId"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	Brand             string     `db:"brand" json:"brand"`
	BikeType          string     `db:"bike_type" json:"type"`
	FrameSize         string     `db:"frame_size" json:"frameSize,omitempty"`
	ModelYear         int        `db:"model_year" json:"year,omitempty"`
	Price             int64      `db:"price" json:"price"`
	Images            StringList `db:"images" json:"images"`
	Status            string     `db:"status" json:"status"`
	SellerPlanType    string     `db:"seller_plan_type" json:"sellerPlanType,omitempty"`
	PriorityLevel     int        `db:"priority_level" json:"priorityLevel"`
	ApprovalTimeHours int        `db:"approval_time_hours" json:"approvalTimeHours"`
	RejectionReason   string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
	SubmittedAt       *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	ReviewedAt        *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// SLADeadline is the time by which a pending listing should be reviewed
func (l *Listing) SLADeadline() *time.Time {
	if l.SubmittedAt == nil {
		return nil
	}
	d := l.SubmittedAt.Add(time.Duration(l.ApprovalTimeHours) * time.Hour)
	return &d
}

// StringList is stored as a JSONB array
type StringList []string

// Value implements driver.Valuer
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *StringList) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Listing statuses
const (
	ListingStatusDraft           = "DRAFT"
	ListingStatusPendingApproval = "PENDING_APPROVAL"
	ListingStatusPublished       = "PUBLISHED"
	ListingStatusRejected        = "REJECTED"
	ListingStatusSold            = "SOLD"
)

// Bike types
const (
	BikeTypeRoad   = "ROAD"
	BikeTypeMTB    = "MTB"
	BikeTypeGravel = "GRAVEL"
)

// Wallet is a user's ledger balance
type Wallet struct {
	UserID         int64     `db:"user_id" json:"userId"`
	Balance        int64     `db:"balance" json:"balance"`
	TotalEarnings  int64     `db:"total_earnings" json:"totalEarnings"`
	TotalWithdrawn int64     `db:"total_withdrawn" json:"totalWithdrawn"`
	TotalDeposited int64     `db:"total_deposited" json:"totalDeposited"`
	TotalSpent     int64     `db:"total_spent" json:"totalSpent"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// WalletTransaction is one append-only balance movement
type WalletTransaction struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"userId"`
	Type         string    `db:"type" json:"type"`
	Amount       int64     `db:"amount" json:"amount"`
	BalanceAfter int64     `db:"balance_after" json:"balanceAfter"`
	OrderID      *int64    `db:"order_id" json:"orderId,omitempty"`
	WithdrawalID *int64    `db:"withdrawal_id" json:"withdrawalId,omitempty"`
	Note         string    `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Wallet transaction types
const (
	TxTypeDeposit            = "DEPOSIT"
	TxTypeEscrowHold         = "ESCROW_HOLD"
	TxTypeEscrowRefund       = "ESCROW_REFUND"
	TxTypeSalePayout         = "SALE_PAYOUT"
	TxTypeWithdrawal         = "WITHDRAWAL"
	TxTypeWithdrawalReversal = "WITHDRAWAL_REVERSAL"
)

// Withdrawal is a seller's request to move balance to a bank account
type Withdrawal struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"userId"`
	Amount        int64      `db:"amount" json:"amount"`
	Fee           int64      `db:"fee" json:"fee"`
	NetAmount     int64      `db:"net_amount" json:"netAmount"`
	BankName      string     `db:"bank_name" json:"bankName"`
	AccountNumber string     `db:"account_number" json:"accountNumber"`
	AccountName   string     `db:"account_name" json:"accountName"`
	Status        string     `db:"status" json:"status"`
	AdminNote     string     `db:"admin_note" json:"adminNote,omitempty"`
	ProcessedAt   *time.Time `db:"processed_at" json:"processedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// Withdrawal statuses
const (
	WithdrawalStatusPending  = "PENDING"
	WithdrawalStatusApproved = "APPROVED"
	WithdrawalStatusRejected = "REJECTED"
)

// Notification is a feed entry produced from a domain event
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	EventID   string    `db:"event_id" json:"eventId"`
	Type      string    `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// Pagination mirrors the envelope the client expects
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes page count for a result window
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
