package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
	"bike-marketplace/internal/store/memstore"

	"github.com/stretchr/testify/require"
)

// recordingPublisher keeps the type of every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(base models.BaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, base.EventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishPayoutReleased(_ context.Context, e *models.PayoutReleasedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishEscrowRefunded(_ context.Context, e *models.EscrowRefundedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishInspectionSubmitted(_ context.Context, e *models.InspectionSubmittedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishListingModerated(_ context.Context, e *models.ListingModeratedEvent) error {
	return p.record(e.BaseEvent)
}

func (p *recordingPublisher) PublishWithdrawal(_ context.Context, e *models.WithdrawalEvent) error {
	return p.record(e.BaseEvent)
}

var (
	buyer     = &models.Principal{UserID: 1, Role: models.RoleBuyer}
	seller    = &models.Principal{UserID: 2, Role: models.RoleSeller, PlanType: models.PlanFree}
	inspector = &models.Principal{UserID: 3, Role: models.RoleInspector}
	admin     = &models.Principal{UserID: 4, Role: models.RoleAdmin}
	stranger  = &models.Principal{UserID: 5, Role: models.RoleBuyer}
)

type env struct {
	repo          *memstore.Store
	kv            *memstore.KV
	pub           *recordingPublisher
	escrow        *service.EscrowLedger
	orders        *service.OrderService
	inspections   *service.InspectionService
	listings      *service.ListingService
	wallets       *service.WalletService
	notifications *service.NotificationService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := memstore.New()
	kv := memstore.NewKV()
	pub := &recordingPublisher{}

	escrow, err := service.NewEscrowLedger("5")
	require.NoError(t, err)

	orders := service.NewOrderService(repo, escrow, kv, pub, 30*time.Second)
	rules := service.WithdrawalRules{MinAmount: 50000, FeeFreeFrom: 1000000, FlatFee: 10000}

	return &env{
		repo:          repo,
		kv:            kv,
		pub:           pub,
		escrow:        escrow,
		orders:        orders,
		inspections:   service.NewInspectionService(repo, orders, pub, 100),
		listings:      service.NewListingService(repo, kv, pub, time.Minute),
		wallets:       service.NewWalletService(repo, kv, pub, rules, time.Hour, true),
		notifications: service.NewNotificationService(repo),
	}
}

// publishedListing walks a listing through submission and approval
func (e *env) publishedListing(t *testing.T, bikeType string, price int64) *models.Listing {
	t.Helper()
	ctx := context.Background()

	l, err := e.listings.Create(ctx, seller, &service.ListingRequest{
		Title: "Trek Domane SL6 2022",
		Brand: "Trek",
		Type:  bikeType,
		Price: price,
	})
	require.NoError(t, err)

	_, err = e.listings.Submit(ctx, seller, l.ID)
	require.NoError(t, err)

	l, err = e.listings.Moderate(ctx, admin, l.ID, &service.ModerationRequest{Status: service.DecisionApprove})
	require.NoError(t, err)
	return l
}

func (e *env) fund(t *testing.T, user *models.Principal, amount int64) {
	t.Helper()
	_, err := e.wallets.Deposit(context.Background(), user, &service.DepositRequest{Amount: amount})
	require.NoError(t, err)
}

// lockedOrder creates an order on a fresh listing and locks escrow
func (e *env) lockedOrder(t *testing.T, inspectionRequired bool) *models.Order {
	t.Helper()
	ctx := context.Background()

	l := e.publishedListing(t, models.BikeTypeRoad, 185000000)
	e.fund(t, buyer, l.Price)

	o, _, err := e.orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{
		ListingID:          l.ID,
		InspectionRequired: inspectionRequired,
	})
	require.NoError(t, err)

	o, err = e.orders.Transition(ctx, buyer, o.ID, models.OrderStatusEscrowLocked, "")
	require.NoError(t, err)
	return o
}

func allPass(bikeType string) []models.Checkpoint {
	items := service.ChecklistFor(bikeType)
	cps := make([]models.Checkpoint, 0, len(items))
	for _, it := range items {
		cps = append(cps, models.Checkpoint{Component: it.Component, Status: models.CheckpointPass})
	}
	return cps
}

func statuses(timeline []models.TimelineEntry) []string {
	out := make([]string, 0, len(timeline))
	for _, e := range timeline {
		out = append(out, e.Status)
	}
	return out
}
