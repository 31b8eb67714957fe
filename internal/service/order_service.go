package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService owns the order state machine
type OrderService struct {
	repo          Repository
	escrow        *EscrowLedger
	locker        Locker
	publisher     EventPublisher
	payoutLockTTL time.Duration
	logger        *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo Repository,
	escrow *EscrowLedger,
	locker Locker,
	publisher EventPublisher,
	payoutLockTTL time.Duration,
) *OrderService {
	return &OrderService{
		repo:          repo,
		escrow:        escrow,
		locker:        locker,
		publisher:     publisher,
		payoutLockTTL: payoutLockTTL,
		logger:        util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. The amount is
// always taken from the listing.
type CreateOrderRequest struct {
	ListingID          int64  `json:"listingId" binding:"required"`
	InspectionRequired bool   `json:"inspectionRequired"`
	IdempotencyKey     string `json:"idempotencyKey,omitempty"`
}

// CreateOrder creates an order for a published listing. A repeated
// idempotency key returns the order created by the first request, with
// created set to false.
func (s *OrderService) CreateOrder(ctx context.Context, buyer *models.Principal, req *CreateOrderRequest) (order *models.Order, created bool, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("listing_id", req.ListingID))
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	switch {
	case err == nil:
		if existing.BuyerID != buyer.UserID {
			return nil, false, fmt.Errorf("idempotency key already used: %w", models.ErrConflict)
		}
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return s.withTimeline(ctx, existing)
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
	}

	var out outbox
	err = s.repo.InTx(ctx, func(repo Repository) error {
		listing, err := repo.LockListing(ctx, req.ListingID)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusPublished {
			return fmt.Errorf("listing %d is %s: %w", listing.ID, listing.Status, models.ErrConflict)
		}
		if listing.SellerID == buyer.UserID {
			return fmt.Errorf("cannot buy own listing: %w", models.ErrForbidden)
		}

		active, err := repo.CountActiveOrdersForListing(ctx, listing.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("listing %d already has an active order: %w", listing.ID, models.ErrConflict)
		}

		order = &models.Order{
			BuyerID:            buyer.UserID,
			SellerID:           listing.SellerID,
			ListingID:          listing.ID,
			Status:             models.OrderStatusCreated,
			Amount:             listing.Price,
			Financials:         s.escrow.Split(listing.Price),
			Escrow:             models.Escrow{EscrowState: models.EscrowStatusNone},
			InspectionRequired: req.InspectionRequired,
			IdempotencyKey:     req.IdempotencyKey,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		entry := &models.TimelineEntry{OrderID: order.ID, Status: models.OrderStatusCreated, ActorID: buyer.UserID}
		if err := repo.AppendTimeline(ctx, entry); err != nil {
			return fmt.Errorf("failed to append timeline: %w", err)
		}
		order.Timeline = []models.TimelineEntry{*entry}

		event := &models.OrderCreatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCreated),
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			SellerID:  order.SellerID,
			ListingID: order.ListingID,
			Amount:    order.Amount,
		}
		out.add(func(ctx context.Context, pub EventPublisher) error {
			util.OrdersCreatedTotal.Inc()
			return pub.PublishOrderCreated(ctx, event)
		})
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, false, err
	}

	out.flush(ctx, s.publisher, s.logger)

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("amount", order.Amount))
	return order, true, nil
}

// TransitionRequest asks for an order to move to a new status
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note,omitempty"`
}

// Transition moves an order to target if it is a direct successor of the
// current status and the caller may request it. COMPLETED is only reached
// through payout release.
func (s *OrderService) Transition(ctx context.Context, actor *models.Principal, orderID int64, target, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Transition",
		attribute.Int64("order_id", orderID),
		attribute.String("target", target))
	defer span.End()

	if !models.IsValidOrderStatus(target) {
		util.OrderTransitionsRejectedTotal.WithLabelValues("unknown_status").Inc()
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", target))
	}
	if target == models.OrderStatusCompleted {
		return s.ReleasePayout(ctx, actor, orderID)
	}

	var order *models.Order
	var out outbox
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.CanView(actor) {
			return fmt.Errorf("order %d: %w", orderID, models.ErrForbidden)
		}
		if !order.CanTransitionTo(target) {
			util.OrderTransitionsRejectedTotal.WithLabelValues("invalid_edge").Inc()
			return fmt.Errorf("cannot move order from %s to %s: %w", order.Status, target, models.ErrInvalidTransition)
		}
		if !order.CanRequestTransition(actor, target) {
			util.OrderTransitionsRejectedTotal.WithLabelValues("forbidden").Inc()
			return fmt.Errorf("%s may not move order to %s: %w", actor.Role, target, models.ErrForbidden)
		}
		return s.apply(ctx, repo, order, target, actor.UserID, note, &out)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	out.flush(ctx, s.publisher, s.logger)
	order, _, err = s.withTimeline(ctx, order)
	return order, err
}

// ReleasePayout completes a delivered order and pays the seller. Calling it
// on a completed order returns the order unchanged, and a call that arrives
// while another release is in flight waits for it.
func (s *OrderService) ReleasePayout(ctx context.Context, actor *models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ReleasePayout",
		attribute.Int64("order_id", orderID))
	defer span.End()

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("payout release requires admin: %w", models.ErrForbidden)
	}

	start := time.Now()
	defer func() {
		util.PayoutReleaseLatency.Observe(time.Since(start).Seconds())
	}()

	lockKey := fmt.Sprintf("lock:payout:%d", orderID)
	token, ok, err := s.waitForLock(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payout lock: %w", err)
	}
	if ok {
		defer func() {
			if err := s.locker.ReleaseLock(ctx, lockKey, token); err != nil {
				s.logger.Warn("Failed to release payout lock", zap.Int64("order_id", orderID), zap.Error(err))
			}
		}()
	} else {
		// the order row lock still serializes the release
		s.logger.Warn("Payout lock still held, continuing under row lock", zap.Int64("order_id", orderID))
	}

	var order *models.Order
	var out outbox
	err = s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusCompleted {
			s.logger.Info("Payout already released", zap.Int64("order_id", orderID))
			return nil
		}
		if !order.CanTransitionTo(models.OrderStatusCompleted) {
			util.OrderTransitionsRejectedTotal.WithLabelValues("invalid_edge").Inc()
			return fmt.Errorf("cannot release payout for %s order: %w", order.Status, models.ErrInvalidTransition)
		}
		return s.apply(ctx, repo, order, models.OrderStatusCompleted, actor.UserID, "Payout released", &out)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	out.flush(ctx, s.publisher, s.logger)
	order, _, err = s.withTimeline(ctx, order)
	return order, err
}

// waitForLock retries the payout lock until payoutLockTTL has passed. ok is
// false when another holder kept it for the whole window.
func (s *OrderService) waitForLock(ctx context.Context, key string) (token string, ok bool, err error) {
	deadline := time.Now().Add(s.payoutLockTTL)
	wait := 10 * time.Millisecond

	for {
		token, ok, err = s.locker.AcquireLock(ctx, key, s.payoutLockTTL)
		if err != nil || ok {
			return token, ok, err
		}
		if time.Now().Add(wait).After(deadline) {
			return "", false, nil
		}

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
		if wait < 500*time.Millisecond {
			wait *= 2
		}
	}
}

// apply performs the escrow side effect of reaching target, writes the new
// status and appends the timeline entry. The caller holds the order lock.
func (s *OrderService) apply(ctx context.Context, repo Repository, order *models.Order, target string, actorID int64, note string, out *outbox) error {
	from := order.Status

	switch target {
	case models.OrderStatusEscrowLocked:
		if err := s.escrow.Lock(ctx, repo, order); err != nil {
			reason := "error"
			if errors.Is(err, models.ErrInsufficientFunds) {
				reason = "insufficient_funds"
			}
			util.EscrowLockFailedTotal.WithLabelValues(reason).Inc()
			return err
		}
		out.after(util.EscrowLockedTotal.Inc)
	case models.OrderStatusCompleted:
		if err := s.escrow.Release(ctx, repo, order, out); err != nil {
			return err
		}
	case models.OrderStatusRejected:
		if err := s.escrow.Refund(ctx, repo, order, out); err != nil {
			return err
		}
	}

	order.Status = target
	if err := repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	entry := &models.TimelineEntry{OrderID: order.ID, Status: target, ActorID: actorID, Note: note}
	if err := repo.AppendTimeline(ctx, entry); err != nil {
		return fmt.Errorf("failed to append timeline: %w", err)
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		SellerID:   order.SellerID,
		FromStatus: from,
		ToStatus:   target,
		ActorID:    actorID,
		Note:       note,
	}
	out.add(func(ctx context.Context, pub EventPublisher) error {
		util.OrderTransitionsTotal.WithLabelValues(from, target).Inc()
		return pub.PublishOrderStatusChanged(ctx, event)
	})

	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", from),
		zap.String("to", target),
		zap.Int64("actor_id", actorID))
	return nil
}

// GetOrder retrieves an order with its timeline
func (s *OrderService) GetOrder(ctx context.Context, viewer *models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanView(viewer) {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrForbidden)
	}

	order, _, err = s.withTimeline(ctx, order)
	return order, err
}

// ListOrders returns a page of orders visible to the viewer. Admins and
// inspectors see every order; everyone else sees orders they buy or sell.
func (s *OrderService) ListOrders(ctx context.Context, viewer *models.Principal, status string, page, limit int) ([]models.Order, models.Pagination, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if status != "" && !models.IsValidOrderStatus(status) {
		return nil, models.Pagination{}, models.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	page, limit = normalizePage(page, limit, 100)
	filter := OrderFilter{Status: status, Page: page, Limit: limit}
	if viewer.Role != models.RoleAdmin && viewer.Role != models.RoleInspector {
		filter.ParticipantID = viewer.UserID
	}

	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return orders, models.NewPagination(total, page, limit), nil
}

func (s *OrderService) withTimeline(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	timeline, err := s.repo.GetTimeline(ctx, order.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load timeline: %w", err)
	}
	order.Timeline = timeline
	return order, false, nil
}
