package service

import (
	"context"
	"fmt"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// EscrowLedger moves money between wallets and order holds. Every method
// runs on the repository of the caller's transaction.
type EscrowLedger struct {
	feePercent decimal.Decimal
	logger     *zap.Logger
}

// NewEscrowLedger creates a ledger charging platformFeePercent of each sale
func NewEscrowLedger(platformFeePercent string) (*EscrowLedger, error) {
	pct, err := decimal.NewFromString(platformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("invalid platform fee percent %q: %w", platformFeePercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return nil, fmt.Errorf("platform fee percent %s out of range", pct)
	}

	return &EscrowLedger{
		feePercent: pct,
		logger:     util.ComponentLogger("escrow"),
	}, nil
}

// Split derives the platform fee and seller share of an order amount.
// The fee is rounded half away from zero to a whole unit.
func (l *EscrowLedger) Split(amount int64) models.Financials {
	fee := decimal.NewFromInt(amount).Mul(l.feePercent).Div(hundred).Round(0).IntPart()
	return models.Financials{
		PlatformFee:  fee,
		SellerAmount: amount - fee,
	}
}

// Lock debits the buyer and places the order amount on hold
func (l *EscrowLedger) Lock(ctx context.Context, repo Repository, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "EscrowLedger.Lock")
	defer span.End()

	if order.EscrowState == models.EscrowStatusHeld {
		return nil
	}
	if order.Status != models.OrderStatusCreated {
		return fmt.Errorf("escrow lock on %s order: %w", order.Status, models.ErrInvalidTransition)
	}

	orderID := order.ID
	_, err := postEntry(ctx, repo, ledgerEntry{
		UserID:  order.BuyerID,
		Type:    models.TxTypeEscrowHold,
		Amount:  -order.Amount,
		OrderID: &orderID,
		Note:    fmt.Sprintf("Escrow hold for order #%d", order.ID),
	}, func(w *models.Wallet) {
		w.TotalSpent += order.Amount
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	order.Escrow = models.Escrow{EscrowState: models.EscrowStatusHeld, AmountHeld: order.Amount}

	l.logger.Info("Escrow locked",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("amount", order.Amount))
	return nil
}

// Release pays the seller share out of the hold and marks the listing sold.
// Releasing an already released hold does nothing.
func (l *EscrowLedger) Release(ctx context.Context, repo Repository, order *models.Order, out *outbox) error {
	ctx, span := util.StartSpan(ctx, "EscrowLedger.Release")
	defer span.End()

	if order.EscrowState == models.EscrowStatusReleased {
		return nil
	}
	if order.EscrowState != models.EscrowStatusHeld {
		return fmt.Errorf("no funds held for order %d: %w", order.ID, models.ErrConflict)
	}

	orderID := order.ID
	_, err := postEntry(ctx, repo, ledgerEntry{
		UserID:  order.SellerID,
		Type:    models.TxTypeSalePayout,
		Amount:  order.SellerAmount,
		OrderID: &orderID,
		Note:    fmt.Sprintf("Payout for order #%d (fee %d)", order.ID, order.PlatformFee),
	}, func(w *models.Wallet) {
		w.TotalEarnings += order.SellerAmount
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	listing, err := repo.LockListing(ctx, order.ListingID)
	if err != nil {
		return fmt.Errorf("failed to lock listing: %w", err)
	}
	listing.Status = models.ListingStatusSold
	if err := repo.UpdateListing(ctx, listing); err != nil {
		return fmt.Errorf("failed to mark listing sold: %w", err)
	}

	order.Escrow = models.Escrow{EscrowState: models.EscrowStatusReleased, AmountHeld: 0}

	event := &models.PayoutReleasedEvent{
		BaseEvent:    newBaseEvent(models.EventTypePayoutReleased),
		OrderID:      order.ID,
		SellerID:     order.SellerID,
		SellerAmount: order.SellerAmount,
		PlatformFee:  order.PlatformFee,
	}
	out.add(func(ctx context.Context, pub EventPublisher) error {
		util.PayoutsReleasedTotal.Inc()
		return pub.PublishPayoutReleased(ctx, event)
	})

	l.logger.Info("Escrow released",
		zap.Int64("order_id", order.ID),
		zap.Int64("seller_id", order.SellerID),
		zap.Int64("seller_amount", order.SellerAmount),
		zap.Int64("platform_fee", order.PlatformFee))
	return nil
}

// Refund returns a held amount to the buyer. Orders without a hold are left
// untouched.
func (l *EscrowLedger) Refund(ctx context.Context, repo Repository, order *models.Order, out *outbox) error {
	ctx, span := util.StartSpan(ctx, "EscrowLedger.Refund")
	defer span.End()

	if order.EscrowState != models.EscrowStatusHeld {
		return nil
	}

	amount := order.AmountHeld
	orderID := order.ID
	_, err := postEntry(ctx, repo, ledgerEntry{
		UserID:  order.BuyerID,
		Type:    models.TxTypeEscrowRefund,
		Amount:  amount,
		OrderID: &orderID,
		Note:    fmt.Sprintf("Refund for order #%d", order.ID),
	}, func(w *models.Wallet) {
		w.TotalSpent -= amount
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	order.Escrow = models.Escrow{EscrowState: models.EscrowStatusRefunded, AmountHeld: 0}

	event := &models.EscrowRefundedEvent{
		BaseEvent: newBaseEvent(models.EventTypeEscrowRefunded),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Amount:    amount,
	}
	out.add(func(ctx context.Context, pub EventPublisher) error {
		util.EscrowRefundsTotal.Inc()
		return pub.PublishEscrowRefunded(ctx, event)
	})

	l.logger.Info("Escrow refunded",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("amount", amount))
	return nil
}

// ledgerEntry is one signed balance movement
type ledgerEntry struct {
	UserID       int64
	Type         string
	Amount       int64
	OrderID      *int64
	WithdrawalID *int64
	Note         string
}

// postEntry applies e to the locked wallet, lets totals adjust the running
// sums, and appends the matching wallet transaction.
func postEntry(ctx context.Context, repo Repository, e ledgerEntry, totals func(w *models.Wallet)) (*models.Wallet, error) {
	wallet, err := repo.LockWallet(ctx, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if wallet.Balance+e.Amount < 0 {
		return nil, fmt.Errorf("wallet %d balance %d, need %d: %w",
			e.UserID, wallet.Balance, -e.Amount, models.ErrInsufficientFunds)
	}

	wallet.Balance += e.Amount
	totals(wallet)

	if err := repo.UpdateWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	tx := &models.WalletTransaction{
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       e.Amount,
		BalanceAfter: wallet.Balance,
		OrderID:      e.OrderID,
		WithdrawalID: e.WithdrawalID,
		Note:         e.Note,
	}
	if err := repo.CreateWalletTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record wallet transaction: %w", err)
	}

	return wallet, nil
}
