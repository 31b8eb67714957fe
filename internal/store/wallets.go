package store

import (
	"context"
	"fmt"
	"strings"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
)

const walletColumns = `user_id, balance, total_earnings, total_withdrawn, total_deposited, total_spent, updated_at`

const withdrawalColumns = `id, user_id, amount, fee, net_amount, bank_name, account_number, account_name,
	status, admin_note, processed_at, created_at`

// GetWallet returns a user's wallet, or a zero wallet if none exists yet
func (s *Store) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	wallets := []models.Wallet{}
	err := s.q.SelectContext(ctx, &wallets, "SELECT "+walletColumns+" FROM wallets WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return &models.Wallet{UserID: userID}, nil
	}
	return &wallets[0], nil
}

// LockWallet creates the wallet row if missing and locks it
func (s *Store) LockWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	if _, err := s.q.ExecContext(ctx,
		"INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID); err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	var wallet models.Wallet
	err := s.q.GetContext(ctx, &wallet, "SELECT "+walletColumns+" FROM wallets WHERE user_id = $1 FOR UPDATE", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// UpdateWallet writes all wallet totals
func (s *Store) UpdateWallet(ctx context.Context, wallet *models.Wallet) error {
	return s.q.GetContext(ctx, &wallet.UpdatedAt, `
		UPDATE wallets SET
			balance = $1, total_earnings = $2, total_withdrawn = $3, total_deposited = $4, total_spent = $5,
			updated_at = NOW()
		WHERE user_id = $6
		RETURNING updated_at`,
		wallet.Balance, wallet.TotalEarnings, wallet.TotalWithdrawn, wallet.TotalDeposited,
		wallet.TotalSpent, wallet.UserID)
}

// CreateWalletTransaction appends a ledger row
func (s *Store) CreateWalletTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (user_id, type, amount, balance_after, order_id, withdrawal_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.q.GetContext(ctx, tx, query,
		tx.UserID, tx.Type, tx.Amount, tx.BalanceAfter, tx.OrderID, tx.WithdrawalID, tx.Note)
}

// ListWalletTransactions returns a page of a user's ledger, newest first
func (s *Store) ListWalletTransactions(ctx context.Context, userID int64, page, limit int) ([]models.WalletTransaction, int, error) {
	var total int
	if err := s.q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1", userID); err != nil {
		return nil, 0, err
	}

	txs := []models.WalletTransaction{}
	err := s.q.SelectContext(ctx, &txs, `
		SELECT id, user_id, type, amount, balance_after, order_id, withdrawal_id, note, created_at
		FROM wallet_transactions WHERE user_id = $1
		ORDER BY id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset(page, limit))
	return txs, total, err
}

// CreateWithdrawal creates a withdrawal request
func (s *Store) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (user_id, amount, fee, net_amount, bank_name, account_number, account_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return s.q.GetContext(ctx, w, query,
		w.UserID, w.Amount, w.Fee, w.NetAmount, w.BankName, w.AccountNumber, w.AccountName, w.Status)
}

// LockWithdrawal reads a withdrawal under a row lock
func (s *Store) LockWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.q.GetContext(ctx, &w, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "withdrawal", id)
	}
	return &w, nil
}

// UpdateWithdrawal writes the processing outcome
func (s *Store) UpdateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE withdrawals SET status = $1, admin_note = $2, processed_at = $3 WHERE id = $4",
		w.Status, w.AdminNote, w.ProcessedAt, w.ID)
	return err
}

// ListWithdrawals returns a page of withdrawals, newest first
func (s *Store) ListWithdrawals(ctx context.Context, filter service.WithdrawalFilter) ([]models.Withdrawal, int, error) {
	var where []string
	var args []interface{}

	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM withdrawals"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, offset(filter.Page, filter.Limit))
	query := fmt.Sprintf("SELECT %s FROM withdrawals%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		withdrawalColumns, clause, len(args)-1, len(args))

	ws := []models.Withdrawal{}
	if err := s.q.SelectContext(ctx, &ws, query, args...); err != nil {
		return nil, 0, err
	}
	return ws, total, nil
}

// CreateNotification stores a feed entry
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.q.GetContext(ctx, n, `
		INSERT INTO notifications (user_id, event_id, type, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		n.UserID, n.EventID, n.Type, n.Message)
}

// ListNotifications returns a user's most recent notifications
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	ns := []models.Notification{}
	err := s.q.SelectContext(ctx, &ns, `
		SELECT id, user_id, event_id, type, message, created_at
		FROM notifications WHERE user_id = $1 ORDER BY id DESC LIMIT $2`,
		userID, limit)
	return ns, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
