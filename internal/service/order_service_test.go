package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	escrow, err := service.NewEscrowLedger("5")
	require.NoError(t, err)

	tests := []struct {
		amount int64
		fee    int64
	}{
		{185000000, 9250000},
		{1000, 50},
		{10, 1},
		{9, 0},
	}

	for _, tt := range tests {
		f := escrow.Split(tt.amount)
		assert.Equal(t, tt.fee, f.PlatformFee, "amount %d", tt.amount)
		assert.Equal(t, tt.amount-tt.fee, f.SellerAmount)
	}
}

func TestNewEscrowLedgerRejectsBadPercent(t *testing.T) {
	for _, pct := range []string{"abc", "-1", "101"} {
		_, err := service.NewEscrowLedger(pct)
		assert.Error(t, err, pct)
	}
}

func TestOrderLifecycleWithInspection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, true)
	assert.Equal(t, models.OrderStatusEscrowLocked, order.Status)
	assert.Equal(t, models.EscrowStatusHeld, order.EscrowState)
	assert.Equal(t, int64(185000000), order.AmountHeld)

	buyerWallet, err := e.wallets.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Zero(t, buyerWallet.Balance)

	inspection, err := e.inspections.Submit(ctx, inspector, &service.SubmitInspectionRequest{
		OrderID:     order.ID,
		Checkpoints: allPass(models.BikeTypeRoad),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPassed, inspection.OverallVerdict)
	assert.Equal(t, 10.0, inspection.OverallScore)
	assert.Equal(t, "A", inspection.Grade)

	order, err = e.orders.Transition(ctx, seller, order.ID, models.OrderStatusShipping, "GHN tracking 123")
	require.NoError(t, err)
	order, err = e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusDelivered, "")
	require.NoError(t, err)

	order, err = e.orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, models.EscrowStatusReleased, order.EscrowState)
	assert.Zero(t, order.AmountHeld)

	sellerWallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(185000000-9250000), sellerWallet.Balance)
	assert.Equal(t, sellerWallet.Balance, sellerWallet.TotalEarnings)

	listing, err := e.listings.Get(ctx, nil, order.ListingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusSold, listing.Status)

	assert.Equal(t, []string{
		models.OrderStatusCreated,
		models.OrderStatusEscrowLocked,
		models.OrderStatusInInspection,
		models.OrderStatusInspectionPassed,
		models.OrderStatusShipping,
		models.OrderStatusDelivered,
		models.OrderStatusCompleted,
	}, statuses(order.Timeline))

	assert.Equal(t, 1, e.pub.count(models.EventTypePayoutReleased))
}

func TestOrderWithoutInspectionSkipsToShipping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, false)

	_, err := e.orders.Transition(ctx, inspector, order.ID, models.OrderStatusInInspection, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	order, err = e.orders.Transition(ctx, seller, order.ID, models.OrderStatusShipping, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipping, order.Status)
}

func TestInvalidTransitionLeavesOrderUnchanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, true)

	tests := []string{
		models.OrderStatusCreated,
		models.OrderStatusShipping,
		models.OrderStatusDelivered,
		models.OrderStatusInspectionPassed,
	}
	for _, target := range tests {
		_, err := e.orders.Transition(ctx, admin, order.ID, target, "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition, target)
	}

	_, err := e.orders.ReleasePayout(ctx, admin, order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	after, err := e.orders.GetOrder(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusEscrowLocked, after.Status)
	assert.Len(t, after.Timeline, 2)
	assert.Equal(t, order.AmountHeld, after.AmountHeld)
}

func TestUnknownStatusIsValidationError(t *testing.T) {
	e := newEnv(t)
	order := e.lockedOrder(t, false)

	_, err := e.orders.Transition(context.Background(), admin, order.ID, "LOST", "")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTransitionPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, false)

	_, err := e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusShipping, "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.orders.Transition(ctx, stranger, order.ID, models.OrderStatusShipping, "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.orders.ReleasePayout(ctx, seller, order.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestReleasePayoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, false)
	_, err := e.orders.Transition(ctx, seller, order.ID, models.OrderStatusShipping, "")
	require.NoError(t, err)
	_, err = e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusDelivered, "")
	require.NoError(t, err)

	first, err := e.orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	second, err := e.orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, len(first.Timeline), len(second.Timeline))

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, order.SellerAmount, wallet.Balance)
	assert.Equal(t, 1, e.pub.count(models.EventTypePayoutReleased))
}

func TestConcurrentPayoutReleasePaysOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, false)
	_, err := e.orders.Transition(ctx, seller, order.ID, models.OrderStatusShipping, "")
	require.NoError(t, err)
	_, err = e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusDelivered, "")
	require.NoError(t, err)

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orders.ReleasePayout(ctx, admin, order.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, order.SellerAmount, wallet.Balance)
	assert.Equal(t, 1, e.pub.count(models.EventTypePayoutReleased))
}

func deliveredOrder(t *testing.T, e *env) *models.Order {
	t.Helper()
	ctx := context.Background()

	order := e.lockedOrder(t, false)
	_, err := e.orders.Transition(ctx, seller, order.ID, models.OrderStatusShipping, "")
	require.NoError(t, err)
	order, err = e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusDelivered, "")
	require.NoError(t, err)
	return order
}

func TestReleasePayoutWaitsForReleaseInFlight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := deliveredOrder(t, e)

	key := fmt.Sprintf("lock:payout:%d", order.ID)
	token, held, err := e.kv.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = e.kv.ReleaseLock(ctx, key, token)
	}()

	got, err := e.orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)
}

func TestReleasePayoutProceedsWhenLockNeverFrees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := deliveredOrder(t, e)

	_, held, err := e.kv.AcquireLock(ctx, fmt.Sprintf("lock:payout:%d", order.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	orders := service.NewOrderService(e.repo, e.escrow, e.kv, e.pub, 100*time.Millisecond)

	got, err := orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)

	again, err := orders.ReleasePayout(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, len(got.Timeline), len(again.Timeline))

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, order.SellerAmount, wallet.Balance)
}

func TestEscrowLockInsufficientFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l := e.publishedListing(t, models.BikeTypeRoad, 185000000)
	e.fund(t, buyer, 1000)

	order, _, err := e.orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{ListingID: l.ID})
	require.NoError(t, err)

	_, err = e.orders.Transition(ctx, buyer, order.ID, models.OrderStatusEscrowLocked, "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	after, err := e.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, after.Status)
	assert.Equal(t, models.EscrowStatusNone, after.EscrowState)

	wallet, err := e.wallets.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.Balance)
}

func TestRejectRefundsBuyer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.lockedOrder(t, true)

	order, err := e.orders.Transition(ctx, admin, order.ID, models.OrderStatusRejected, "Listing taken down")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, order.EscrowState)
	assert.Zero(t, order.AmountHeld)

	wallet, err := e.wallets.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(185000000), wallet.Balance)
	assert.Zero(t, wallet.TotalSpent)

	_, err = e.orders.Transition(ctx, admin, order.ID, models.OrderStatusCreated, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCreateOrderRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l := e.publishedListing(t, models.BikeTypeMTB, 20000000)

	_, _, err := e.orders.CreateOrder(ctx, seller, &service.CreateOrderRequest{ListingID: l.ID})
	assert.ErrorIs(t, err, models.ErrForbidden)

	first, created, err := e.orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{ListingID: l.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, l.Price, first.Amount)
	assert.Equal(t, int64(1000000), first.PlatformFee)

	again, created, err := e.orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{ListingID: l.ID, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = e.orders.CreateOrder(ctx, stranger, &service.CreateOrderRequest{ListingID: l.ID})
	assert.ErrorIs(t, err, models.ErrConflict)

	draft, err := e.listings.Create(ctx, seller, &service.ListingRequest{Title: "x", Brand: "y", Type: "ROAD", Price: 1})
	require.NoError(t, err)
	_, _, err = e.orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{ListingID: draft.ID})
	assert.ErrorIs(t, err, models.ErrConflict)

	assert.Equal(t, 1, e.pub.count(models.EventTypeOrderCreated))
}

func TestListOrdersScopedToParticipant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.lockedOrder(t, false)

	mine, page, err := e.orders.ListOrders(ctx, buyer, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, 1, page.Total)

	sold, _, err := e.orders.ListOrders(ctx, seller, models.OrderStatusEscrowLocked, 1, 10)
	require.NoError(t, err)
	assert.Len(t, sold, 1)

	none, _, err := e.orders.ListOrders(ctx, stranger, "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, _, err := e.orders.ListOrders(ctx, admin, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = e.orders.GetOrder(ctx, stranger, mine[0].ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
