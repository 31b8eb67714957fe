package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WithdrawalRules are the fee schedule and minimum for withdrawals
type WithdrawalRules struct {
	MinAmount   int64
	FeeFreeFrom int64
	FlatFee     int64
}

// Fee returns the fee charged on a withdrawal of amount
func (r WithdrawalRules) Fee(amount int64) int64 {
	if amount >= r.FeeFreeFrom {
		return 0
	}
	return r.FlatFee
}

// WalletService manages balances, deposits and withdrawals
type WalletService struct {
	repo           Repository
	guard          IdempotencyGuard
	publisher      EventPublisher
	rules          WithdrawalRules
	idempotencyTTL time.Duration
	selfDeposit    bool
	now            func() time.Time
	logger         *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(
	repo Repository,
	guard IdempotencyGuard,
	publisher EventPublisher,
	rules WithdrawalRules,
	idempotencyTTL time.Duration,
	selfDeposit bool,
) *WalletService {
	return &WalletService{
		repo:           repo,
		guard:          guard,
		publisher:      publisher,
		rules:          rules,
		idempotencyTTL: idempotencyTTL,
		selfDeposit:    selfDeposit,
		now:            time.Now,
		logger:         util.ComponentLogger("wallet"),
	}
}

// Balance returns the caller's wallet
func (s *WalletService) Balance(ctx context.Context, user *models.Principal) (*models.Wallet, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Balance")
	defer span.End()

	return s.repo.GetWallet(ctx, user.UserID)
}

// DepositRequest tops up a wallet. UserID selects another user's wallet
// and is admin only.
type DepositRequest struct {
	UserID int64  `json:"userId,omitempty"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Note   string `json:"note,omitempty"`
}

// Deposit credits a wallet. Admins may credit any user; other callers may
// top up their own wallet only when self deposits are enabled.
func (s *WalletService) Deposit(ctx context.Context, user *models.Principal, req *DepositRequest) (*models.Wallet, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Deposit", attribute.Int64("amount", req.Amount))
	defer span.End()

	target := user.UserID
	if req.UserID != 0 && req.UserID != user.UserID {
		if !user.IsAdmin() {
			return nil, fmt.Errorf("crediting another wallet requires admin: %w", models.ErrForbidden)
		}
		target = req.UserID
	} else if !s.selfDeposit && !user.IsAdmin() {
		return nil, fmt.Errorf("self deposits are disabled: %w", models.ErrForbidden)
	}

	if req.Amount <= 0 {
		return nil, models.NewValidationError("amount", "amount must be positive")
	}

	note := req.Note
	if note == "" {
		note = "Wallet top-up"
	}

	var wallet *models.Wallet
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		wallet, err = postEntry(ctx, repo, ledgerEntry{
			UserID: target,
			Type:   models.TxTypeDeposit,
			Amount: req.Amount,
			Note:   note,
		}, func(w *models.Wallet) {
			w.TotalDeposited += req.Amount
		})
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Wallet deposit",
		zap.Int64("user_id", target),
		zap.Int64("actor_id", user.UserID),
		zap.Int64("amount", req.Amount))
	return wallet, nil
}

// WithdrawalQuote is the server-side fee calculation for an amount
type WithdrawalQuote struct {
	Amount    int64 `json:"amount"`
	Fee       int64 `json:"fee"`
	NetAmount int64 `json:"netAmount"`
	MinAmount int64 `json:"minAmount"`
}

// Preview quotes the fee for a withdrawal without creating it
func (s *WalletService) Preview(amount int64) (*WithdrawalQuote, error) {
	if amount < s.rules.MinAmount {
		return nil, models.NewValidationError("amount",
			fmt.Sprintf("minimum withdrawal is %d", s.rules.MinAmount))
	}
	fee := s.rules.Fee(amount)
	return &WithdrawalQuote{Amount: amount, Fee: fee, NetAmount: amount - fee, MinAmount: s.rules.MinAmount}, nil
}

// WithdrawRequest moves balance to a bank account
type WithdrawRequest struct {
	Amount         int64  `json:"amount" binding:"required"`
	BankName       string `json:"bankName" binding:"required"`
	AccountNumber  string `json:"accountNumber" binding:"required"`
	AccountName    string `json:"accountName" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// Withdraw creates a PENDING withdrawal and debits the balance right away.
// The minimum is checked before the balance.
func (s *WalletService) Withdraw(ctx context.Context, user *models.Principal, req *WithdrawRequest) (*models.Withdrawal, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Withdraw", attribute.Int64("amount", req.Amount))
	defer span.End()

	quote, err := s.Preview(req.Amount)
	if err != nil {
		util.WithdrawalsFailedTotal.WithLabelValues("below_minimum").Inc()
		return nil, err
	}

	verr := &models.ValidationError{}
	if strings.TrimSpace(req.BankName) == "" {
		verr.Add("bankName", "bank name is required")
	}
	if strings.TrimSpace(req.AccountNumber) == "" {
		verr.Add("accountNumber", "account number is required")
	}
	if strings.TrimSpace(req.AccountName) == "" {
		verr.Add("accountName", "account name is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("withdraw:%d:%s", user.UserID, req.IdempotencyKey)
		claimed, err := s.guard.ClaimIdempotencyKey(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !claimed {
			util.WithdrawalsFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("duplicate withdrawal request: %w", models.ErrConflict)
		}
	}

	w := &models.Withdrawal{
		UserID:        user.UserID,
		Amount:        quote.Amount,
		Fee:           quote.Fee,
		NetAmount:     quote.NetAmount,
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		AccountName:   strings.TrimSpace(req.AccountName),
		Status:        models.WithdrawalStatusPending,
	}

	err = s.repo.InTx(ctx, func(repo Repository) error {
		if err := repo.CreateWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		withdrawalID := w.ID
		_, err := postEntry(ctx, repo, ledgerEntry{
			UserID:       user.UserID,
			Type:         models.TxTypeWithdrawal,
			Amount:       -w.Amount,
			WithdrawalID: &withdrawalID,
			Note:         fmt.Sprintf("Withdrawal #%d to %s", w.ID, w.BankName),
		}, func(wallet *models.Wallet) {
			wallet.TotalWithdrawn += w.Amount
		})
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			util.WithdrawalsFailedTotal.WithLabelValues("insufficient_funds").Inc()
		}
		util.RecordError(span, err)
		return nil, err
	}

	util.WithdrawalsRequestedTotal.Inc()
	s.publish(ctx, models.EventTypeWithdrawalRequested, w)

	s.logger.Info("Withdrawal requested",
		zap.Int64("withdrawal_id", w.ID),
		zap.Int64("user_id", w.UserID),
		zap.Int64("amount", w.Amount),
		zap.Int64("fee", w.Fee))
	return w, nil
}

// ProcessWithdrawalRequest is an admin decision on a pending withdrawal
type ProcessWithdrawalRequest struct {
	Status    string `json:"status" binding:"required"`
	AdminNote string `json:"adminNote,omitempty"`
}

// ProcessWithdrawal approves or rejects a pending withdrawal. Rejection
// returns the amount to the wallet.
func (s *WalletService) ProcessWithdrawal(ctx context.Context, admin *models.Principal, id int64, req *ProcessWithdrawalRequest) (*models.Withdrawal, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.ProcessWithdrawal", attribute.Int64("withdrawal_id", id))
	defer span.End()

	if !admin.IsAdmin() {
		return nil, fmt.Errorf("withdrawal processing requires admin: %w", models.ErrForbidden)
	}

	status := strings.ToUpper(req.Status)
	if status != models.WithdrawalStatusApproved && status != models.WithdrawalStatusRejected {
		return nil, models.NewValidationError("status", "status must be APPROVED or REJECTED")
	}

	var w *models.Withdrawal
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if w, err = repo.LockWithdrawal(ctx, id); err != nil {
			return err
		}
		if w.Status != models.WithdrawalStatusPending {
			return fmt.Errorf("withdrawal %d is %s: %w", id, w.Status, models.ErrInvalidTransition)
		}

		now := s.now().UTC()
		w.Status = status
		w.AdminNote = req.AdminNote
		w.ProcessedAt = &now
		if err := repo.UpdateWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}

		if status == models.WithdrawalStatusRejected {
			withdrawalID := w.ID
			_, err := postEntry(ctx, repo, ledgerEntry{
				UserID:       w.UserID,
				Type:         models.TxTypeWithdrawalReversal,
				Amount:       w.Amount,
				WithdrawalID: &withdrawalID,
				Note:         fmt.Sprintf("Withdrawal #%d rejected", w.ID),
			}, func(wallet *models.Wallet) {
				wallet.TotalWithdrawn -= w.Amount
			})
			return err
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, models.EventTypeWithdrawalProcessed, w)

	s.logger.Info("Withdrawal processed",
		zap.Int64("withdrawal_id", w.ID),
		zap.String("status", w.Status),
		zap.Int64("admin_id", admin.UserID))
	return w, nil
}

func (s *WalletService) publish(ctx context.Context, eventType string, w *models.Withdrawal) {
	event := &models.WithdrawalEvent{
		BaseEvent:    newBaseEvent(eventType),
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Amount:       w.Amount,
		Fee:          w.Fee,
		Status:       w.Status,
	}
	if err := s.publisher.PublishWithdrawal(ctx, event); err != nil {
		s.logger.Error("Failed to publish withdrawal event", zap.String("type", eventType), zap.Error(err))
	}
}

// Transactions returns a page of the caller's wallet ledger
func (s *WalletService) Transactions(ctx context.Context, user *models.Principal, page, limit int) ([]models.WalletTransaction, models.Pagination, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Transactions")
	defer span.End()

	page, limit = normalizePage(page, limit, 100)
	txs, total, err := s.repo.ListWalletTransactions(ctx, user.UserID, page, limit)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return txs, models.NewPagination(total, page, limit), nil
}

// Withdrawals lists withdrawals. Admins see everyone's.
func (s *WalletService) Withdrawals(ctx context.Context, viewer *models.Principal, status string, page, limit int) ([]models.Withdrawal, models.Pagination, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Withdrawals")
	defer span.End()

	page, limit = normalizePage(page, limit, 100)
	filter := WithdrawalFilter{Status: strings.ToUpper(status), Page: page, Limit: limit}
	if !viewer.IsAdmin() {
		filter.UserID = viewer.UserID
	}

	ws, total, err := s.repo.ListWithdrawals(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return ws, models.NewPagination(total, page, limit), nil
}
