package service

import (
	"context"
	"time"

	"bike-marketplace/internal/models"
)

// OrderFilter narrows order listings
type OrderFilter struct {
	BuyerID  int64
	SellerID int64
	// ParticipantID matches orders where the user is buyer or seller
	ParticipantID int64
	Status        string
	Page          int
	Limit         int
}

// ListingFilter narrows listing searches
type ListingFilter struct {
	Status   string
	SellerID int64
	Brand    string
	BikeType string
	MinPrice int64
	MaxPrice int64
	Query    string
	Sort     string
	Page     int
	Limit    int
}

// Listing sort orders
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

// WithdrawalFilter narrows withdrawal listings
type WithdrawalFilter struct {
	UserID int64
	Status string
	Page   int
	Limit  int
}

// Facets summarises published listings for search filters
type Facets struct {
	Brands   []FacetCount `json:"brands"`
	Types    []FacetCount `json:"types"`
	MinPrice int64        `json:"minPrice"`
	MaxPrice int64        `json:"maxPrice"`
	Total    int          `json:"total"`
}

// FacetCount is the number of listings sharing one attribute value
type FacetCount struct {
	Value string `db:"value" json:"value"`
	Count int    `db:"count" json:"count"`
}

// Repository is the persistence boundary. Lock* methods take a row lock and
// must be called inside InTx.
type Repository interface {
	InTx(ctx context.Context, fn func(repo Repository) error) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error)
	CountActiveOrdersForListing(ctx context.Context, listingID int64) (int, error)
	ListInspectionQueue(ctx context.Context, limit int) ([]models.Order, error)
	AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error
	GetTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error)

	CreateInspection(ctx context.Context, inspection *models.Inspection) error
	GetInspectionByOrderID(ctx context.Context, orderID int64) (*models.Inspection, error)

	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
	LockListing(ctx context.Context, id int64) (*models.Listing, error)
	UpdateListing(ctx context.Context, listing *models.Listing) error
	SearchListings(ctx context.Context, filter ListingFilter) ([]models.Listing, int, error)
	ListPendingListings(ctx context.Context, limit int) ([]models.Listing, error)
	CountOverdueListings(ctx context.Context, now time.Time) (int, error)
	ListingFacets(ctx context.Context) (*Facets, error)

	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	LockWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	UpdateWallet(ctx context.Context, wallet *models.Wallet) error
	CreateWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListWalletTransactions(ctx context.Context, userID int64, page, limit int) ([]models.WalletTransaction, int, error)

	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	LockWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]models.Withdrawal, int, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Locker provides short-lived distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Cache stores opaque values with a TTL
type Cache interface {
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteCache(ctx context.Context, key string) error
}

// IdempotencyGuard claims request keys so retries are detected
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPayoutReleased(ctx context.Context, event *models.PayoutReleasedEvent) error
	PublishEscrowRefunded(ctx context.Context, event *models.EscrowRefundedEvent) error
	PublishInspectionSubmitted(ctx context.Context, event *models.InspectionSubmittedEvent) error
	PublishListingModerated(ctx context.Context, event *models.ListingModeratedEvent) error
	PublishWithdrawal(ctx context.Context, event *models.WithdrawalEvent) error
}

func normalizePage(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
