package memstore

import (
	"context"

	"bike-marketplace/internal/models"
)

// write runs a single mutation outside a transaction. It waits for any open
// transaction so a rollback cannot discard it.
func (s *Store) write(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn()
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.write(func() error { return s.createOrder(ctx, order) })
}

func (t txStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return t.createOrder(ctx, order)
}

func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	return s.write(func() error { return s.updateOrder(ctx, order) })
}

func (t txStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	return t.updateOrder(ctx, order)
}

func (s *Store) AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	return s.write(func() error { return s.appendTimeline(ctx, entry) })
}

func (t txStore) AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	return t.appendTimeline(ctx, entry)
}

func (s *Store) CreateInspection(ctx context.Context, inspection *models.Inspection) error {
	return s.write(func() error { return s.createInspection(ctx, inspection) })
}

func (t txStore) CreateInspection(ctx context.Context, inspection *models.Inspection) error {
	return t.createInspection(ctx, inspection)
}

func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	return s.write(func() error { return s.createListing(ctx, listing) })
}

func (t txStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	return t.createListing(ctx, listing)
}

func (s *Store) UpdateListing(ctx context.Context, listing *models.Listing) error {
	return s.write(func() error { return s.updateListing(ctx, listing) })
}

func (t txStore) UpdateListing(ctx context.Context, listing *models.Listing) error {
	return t.updateListing(ctx, listing)
}

func (s *Store) UpdateWallet(ctx context.Context, wallet *models.Wallet) error {
	return s.write(func() error { return s.updateWallet(ctx, wallet) })
}

func (t txStore) UpdateWallet(ctx context.Context, wallet *models.Wallet) error {
	return t.updateWallet(ctx, wallet)
}

func (s *Store) CreateWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	return s.write(func() error { return s.createWalletTransaction(ctx, tx) })
}

func (t txStore) CreateWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	return t.createWalletTransaction(ctx, tx)
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return s.write(func() error { return s.createWithdrawal(ctx, w) })
}

func (t txStore) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return t.createWithdrawal(ctx, w)
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return s.write(func() error { return s.updateWithdrawal(ctx, w) })
}

func (t txStore) UpdateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return t.updateWithdrawal(ctx, w)
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.write(func() error { return s.createNotification(ctx, n) })
}

func (t txStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return t.createNotification(ctx, n)
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return s.write(func() error { return s.markEventProcessed(ctx, eventID, eventType) })
}

func (t txStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return t.markEventProcessed(ctx, eventID, eventType)
}

// LockWallet returns the wallet, creating it if missing
func (s *Store) LockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w *models.Wallet
	err := s.write(func() (err error) {
		w, err = s.lockWallet(ctx, userID)
		return err
	})
	return w, err
}

func (t txStore) LockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	return t.lockWallet(ctx, userID)
}
