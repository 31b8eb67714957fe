// Package memstore is an in-process implementation of the repository and the
// Redis-backed helpers, used for local runs without Postgres and for tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
)

type state struct {
	seq           int64
	orders        map[int64]models.Order
	timeline      map[int64][]models.TimelineEntry
	inspections   map[int64]models.Inspection
	listings      map[int64]models.Listing
	wallets       map[int64]models.Wallet
	walletTxs     []models.WalletTransaction
	withdrawals   map[int64]models.Withdrawal
	notifications []models.Notification
	processed     map[string]string
}

func newState() *state {
	return &state{
		orders:      make(map[int64]models.Order),
		timeline:    make(map[int64][]models.TimelineEntry),
		inspections: make(map[int64]models.Inspection),
		listings:    make(map[int64]models.Listing),
		wallets:     make(map[int64]models.Wallet),
		withdrawals: make(map[int64]models.Withdrawal),
		processed:   make(map[string]string),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.timeline {
		c.timeline[k] = append([]models.TimelineEntry(nil), v...)
	}
	for k, v := range st.inspections {
		c.inspections[k] = v
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	c.walletTxs = append([]models.WalletTransaction(nil), st.walletTxs...)
	for k, v := range st.withdrawals {
		c.withdrawals[k] = v
	}
	c.notifications = append([]models.Notification(nil), st.notifications...)
	for k, v := range st.processed {
		c.processed[k] = v
	}
	return c
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// Store keeps all records in memory. Transactions are serialized and rolled
// back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state
	now  func() time.Time
}

var _ service.Repository = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// txStore is the view handed to InTx callbacks
type txStore struct {
	*Store
}

// InTx reuses the running transaction
func (t txStore) InTx(ctx context.Context, fn func(repo service.Repository) error) error {
	return fn(t)
}

// InTx runs fn with exclusive access and restores the previous state on
// error. Writes made outside InTx take the same lock, so a rollback never
// discards them.
func (s *Store) InTx(ctx context.Context, fn func(repo service.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
}

func window(total, page, limit int) (int, int) {
	start := 0
	if page > 1 {
		start = (page - 1) * limit
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// createOrder creates a new order
func (s *Store) createOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.st.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return fmt.Errorf("order already exists: %w", models.ErrConflict)
		}
	}

	order.ID = s.st.nextID()
	order.CreatedAt = s.now()
	order.UpdatedAt = order.CreatedAt

	stored := *order
	stored.Timeline = nil
	s.st.orders[order.ID] = stored
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.st.orders {
		if o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, notFound("order with key", key)
}

// LockOrder reads an order; InTx already serializes writers
func (s *Store) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.GetOrderByID(ctx, id)
}

// updateOrder writes the mutable order fields
func (s *Store) updateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[order.ID]
	if !ok {
		return notFound("order", order.ID)
	}
	o.Status = order.Status
	o.Escrow = order.Escrow
	o.UpdatedAt = s.now()
	order.UpdatedAt = o.UpdatedAt
	s.st.orders[order.ID] = o
	return nil
}

// ListOrders returns one page of orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter service.OrderFilter) ([]models.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Order{}
	for _, o := range s.st.orders {
		if filter.BuyerID != 0 && o.BuyerID != filter.BuyerID {
			continue
		}
		if filter.SellerID != 0 && o.SellerID != filter.SellerID {
			continue
		}
		if filter.ParticipantID != 0 && o.BuyerID != filter.ParticipantID && o.SellerID != filter.ParticipantID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	start, end := window(len(matched), filter.Page, filter.Limit)
	return matched[start:end], len(matched), nil
}

// CountActiveOrdersForListing counts orders on a listing that are not terminal
func (s *Store) CountActiveOrdersForListing(ctx context.Context, listingID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.st.orders {
		if o.ListingID == listingID && !o.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// ListInspectionQueue returns orders waiting for an inspection, oldest first
func (s *Store) ListInspectionQueue(ctx context.Context, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := []models.Order{}
	for _, o := range s.st.orders {
		if !o.InspectionRequired {
			continue
		}
		if o.Status != models.OrderStatusEscrowLocked && o.Status != models.OrderStatusInInspection {
			continue
		}
		if _, done := s.st.inspections[o.ID]; done {
			continue
		}
		queue = append(queue, o)
	}

	sort.Slice(queue, func(i, j int) bool {
		if !queue[i].UpdatedAt.Equal(queue[j].UpdatedAt) {
			return queue[i].UpdatedAt.Before(queue[j].UpdatedAt)
		}
		return queue[i].ID < queue[j].ID
	})
	if len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

// appendTimeline adds one entry to an order's audit trail
func (s *Store) appendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.st.nextID()
	entry.Timestamp = s.now()
	s.st.timeline[entry.OrderID] = append(s.st.timeline[entry.OrderID], *entry)
	return nil
}

// GetTimeline returns an order's audit trail in insertion order
func (s *Store) GetTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.TimelineEntry{}, s.st.timeline[orderID]...), nil
}

// createInspection stores an inspection; a second one for the same order conflicts
func (s *Store) createInspection(ctx context.Context, inspection *models.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.inspections[inspection.OrderID]; exists {
		return fmt.Errorf("inspection already exists: %w", models.ErrConflict)
	}
	inspection.ID = s.st.nextID()
	inspection.CreatedAt = s.now()
	s.st.inspections[inspection.OrderID] = *inspection
	return nil
}

// GetInspectionByOrderID retrieves the inspection filed for an order
func (s *Store) GetInspectionByOrderID(ctx context.Context, orderID int64) (*models.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.st.inspections[orderID]
	if !ok {
		return nil, notFound("inspection for order", orderID)
	}
	return &in, nil
}

// createListing creates a new listing
func (s *Store) createListing(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing.ID = s.st.nextID()
	listing.CreatedAt = s.now()
	listing.UpdatedAt = listing.CreatedAt
	s.st.listings[listing.ID] = *listing
	return nil
}

// GetListingByID retrieves a listing by ID
func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.st.listings[id]
	if !ok {
		return nil, notFound("listing", id)
	}
	return &l, nil
}

// LockListing reads a listing; InTx already serializes writers
func (s *Store) LockListing(ctx context.Context, id int64) (*models.Listing, error) {
	return s.GetListingByID(ctx, id)
}

// updateListing replaces a listing
func (s *Store) updateListing(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.listings[listing.ID]; !ok {
		return notFound("listing", listing.ID)
	}
	listing.UpdatedAt = s.now()
	s.st.listings[listing.ID] = *listing
	return nil
}

// SearchListings returns one page of listings matching the filter
func (s *Store) SearchListings(ctx context.Context, filter service.ListingFilter) ([]models.Listing, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Listing{}
	for _, l := range s.st.listings {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.SellerID != 0 && l.SellerID != filter.SellerID {
			continue
		}
		if filter.Brand != "" && !strings.EqualFold(l.Brand, filter.Brand) {
			continue
		}
		if filter.BikeType != "" && l.BikeType != strings.ToUpper(filter.BikeType) {
			continue
		}
		if filter.MinPrice > 0 && l.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && l.Price > filter.MaxPrice {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(l.Title), strings.ToLower(filter.Query)) {
			continue
		}
		matched = append(matched, l)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.Sort {
		case service.SortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
			return a.ID < b.ID
		case service.SortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
			return a.ID > b.ID
		}
		return a.ID > b.ID
	})

	start, end := window(len(matched), filter.Page, filter.Limit)
	return matched[start:end], len(matched), nil
}

// ListPendingListings returns the moderation queue in review order
func (s *Store) ListPendingListings(ctx context.Context, limit int) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := []models.Listing{}
	for _, l := range s.st.listings {
		if l.Status == models.ListingStatusPendingApproval {
			queue = append(queue, l)
		}
	}

	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		if !a.SubmittedAt.Equal(*b.SubmittedAt) {
			return a.SubmittedAt.Before(*b.SubmittedAt)
		}
		return a.ID < b.ID
	})
	if len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

// CountOverdueListings counts pending listings past their approval window
func (s *Store) CountOverdueListings(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.st.listings {
		if l.Status != models.ListingStatusPendingApproval {
			continue
		}
		if d := l.SLADeadline(); d != nil && d.Before(now) {
			n++
		}
	}
	return n, nil
}

// ListingFacets aggregates published listings by brand, type and price
func (s *Store) ListingFacets(ctx context.Context) (*service.Facets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	brands := map[string]int{}
	types := map[string]int{}
	facets := &service.Facets{}

	for _, l := range s.st.listings {
		if l.Status != models.ListingStatusPublished {
			continue
		}
		brands[l.Brand]++
		types[l.BikeType]++
		if facets.Total == 0 || l.Price < facets.MinPrice {
			facets.MinPrice = l.Price
		}
		if l.Price > facets.MaxPrice {
			facets.MaxPrice = l.Price
		}
		facets.Total++
	}

	facets.Brands = sortedCounts(brands)
	facets.Types = sortedCounts(types)
	return facets, nil
}

func sortedCounts(m map[string]int) []service.FacetCount {
	out := make([]service.FacetCount, 0, len(m))
	for v, c := range m {
		out = append(out, service.FacetCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// GetWallet returns a user's wallet, or a zero wallet if none exists yet
func (s *Store) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.st.wallets[userID]
	if !ok {
		w = models.Wallet{UserID: userID}
	}
	return &w, nil
}

// lockWallet creates the wallet if missing
func (s *Store) lockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.st.wallets[userID]
	if !ok {
		w = models.Wallet{UserID: userID, UpdatedAt: s.now()}
		s.st.wallets[userID] = w
	}
	return &w, nil
}

// updateWallet writes all wallet totals
func (s *Store) updateWallet(ctx context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wallet.Balance < 0 {
		return fmt.Errorf("wallet %d balance would be negative", wallet.UserID)
	}
	wallet.UpdatedAt = s.now()
	s.st.wallets[wallet.UserID] = *wallet
	return nil
}

// createWalletTransaction appends a ledger row
func (s *Store) createWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = s.st.nextID()
	tx.CreatedAt = s.now()
	s.st.walletTxs = append(s.st.walletTxs, *tx)
	return nil
}

// ListWalletTransactions returns a page of a user's ledger, newest first
func (s *Store) ListWalletTransactions(ctx context.Context, userID int64, page, limit int) ([]models.WalletTransaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.WalletTransaction{}
	for i := len(s.st.walletTxs) - 1; i >= 0; i-- {
		if s.st.walletTxs[i].UserID == userID {
			matched = append(matched, s.st.walletTxs[i])
		}
	}

	start, end := window(len(matched), page, limit)
	return matched[start:end], len(matched), nil
}

// createWithdrawal creates a withdrawal request
func (s *Store) createWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.ID = s.st.nextID()
	w.CreatedAt = s.now()
	s.st.withdrawals[w.ID] = *w
	return nil
}

// LockWithdrawal reads a withdrawal; InTx already serializes writers
func (s *Store) LockWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.st.withdrawals[id]
	if !ok {
		return nil, notFound("withdrawal", id)
	}
	return &w, nil
}

// updateWithdrawal writes the processing outcome
func (s *Store) updateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.withdrawals[w.ID]; !ok {
		return notFound("withdrawal", w.ID)
	}
	s.st.withdrawals[w.ID] = *w
	return nil
}

// ListWithdrawals returns a page of withdrawals, newest first
func (s *Store) ListWithdrawals(ctx context.Context, filter service.WithdrawalFilter) ([]models.Withdrawal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Withdrawal{}
	for _, w := range s.st.withdrawals {
		if filter.UserID != 0 && w.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		matched = append(matched, w)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	start, end := window(len(matched), filter.Page, filter.Limit)
	return matched[start:end], len(matched), nil
}

// createNotification stores a feed entry
func (s *Store) createNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.st.nextID()
	n.CreatedAt = s.now()
	s.st.notifications = append(s.st.notifications, *n)
	return nil
}

// ListNotifications returns a user's most recent notifications
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Notification{}
	for i := len(s.st.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if s.st.notifications[i].UserID == userID {
			out = append(out, s.st.notifications[i])
		}
	}
	return out, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.st.processed[eventID]
	return ok, nil
}

// markEventProcessed marks an event as processed
func (s *Store) markEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.processed[eventID] = eventType
	return nil
}
