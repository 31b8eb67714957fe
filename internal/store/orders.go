package store

import (
	"context"
	"fmt"
	"strings"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
)

const orderColumns = `id, buyer_id, seller_id, listing_id, status, amount, platform_fee, seller_amount,
	escrow_status, escrow_amount_held, inspection_required, idempotency_key, created_at, updated_at`

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, listing_id, status, amount, platform_fee, seller_amount,
			escrow_status, escrow_amount_held, inspection_required, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, order, query,
		order.BuyerID, order.SellerID, order.ListingID, order.Status, order.Amount,
		order.PlatformFee, order.SellerAmount, order.EscrowState, order.AmountHeld,
		order.InspectionRequired, order.IdempotencyKey)
	return uniqueViolation(err, "order")
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
	if err != nil {
		return nil, notFound(err, "order with key", key)
	}
	return &order, nil
}

// LockOrder reads an order under a row lock
func (s *Store) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// UpdateOrder writes the mutable order fields
func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	return s.q.GetContext(ctx, &order.UpdatedAt, `
		UPDATE orders
		SET status = $1, escrow_status = $2, escrow_amount_held = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`,
		order.Status, order.EscrowState, order.AmountHeld, order.ID)
}

// ListOrders returns one page of orders and the total match count
func (s *Store) ListOrders(ctx context.Context, filter service.OrderFilter) ([]models.Order, int, error) {
	var where []string
	var args []interface{}

	if filter.BuyerID != 0 {
		args = append(args, filter.BuyerID)
		where = append(where, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if filter.SellerID != 0 {
		args = append(args, filter.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if filter.ParticipantID != 0 {
		args = append(args, filter.ParticipantID)
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", len(args), len(args)))
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
	if err := s.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, offset(filter.Page, filter.Limit))
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, clause, len(args)-1, len(args))

	orders := []models.Order{}
	if err := s.q.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// CountActiveOrdersForListing counts orders on a listing that are not terminal
func (s *Store) CountActiveOrdersForListing(ctx context.Context, listingID int64) (int, error) {
	var n int
	err := s.q.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM orders WHERE listing_id = $1 AND status NOT IN ($2, $3)",
		listingID, models.OrderStatusCompleted, models.OrderStatusRejected)
	return n, err
}

// ListInspectionQueue returns orders waiting for an inspection, oldest first
func (s *Store) ListInspectionQueue(ctx context.Context, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.q.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+` FROM orders o
		WHERE inspection_required
		  AND status IN ($1, $2)
		  AND NOT EXISTS (SELECT 1 FROM inspections i WHERE i.order_id = o.id)
		ORDER BY updated_at ASC, id ASC
		LIMIT $3`,
		models.OrderStatusEscrowLocked, models.OrderStatusInInspection, limit)
	return orders, err
}

// AppendTimeline adds one entry to an order's audit trail
func (s *Store) AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	return s.q.GetContext(ctx, entry, `
		INSERT INTO order_timeline (order_id, status, actor_id, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, status, actor_id, note, created_at`,
		entry.OrderID, entry.Status, entry.ActorID, entry.Note)
}

// GetTimeline returns an order's audit trail in insertion order
func (s *Store) GetTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error) {
	entries := []models.TimelineEntry{}
	err := s.q.SelectContext(ctx, &entries,
		"SELECT id, order_id, status, actor_id, note, created_at FROM order_timeline WHERE order_id = $1 ORDER BY id",
		orderID)
	return entries, err
}

// CreateInspection stores an inspection; a second one for the same order conflicts
func (s *Store) CreateInspection(ctx context.Context, inspection *models.Inspection) error {
	query := `
		INSERT INTO inspections (order_id, inspector_id, checkpoints, overall_verdict, overall_score, grade, inspector_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.q.GetContext(ctx, inspection, query,
		inspection.OrderID, inspection.InspectorID, inspection.Checkpoints,
		inspection.OverallVerdict, inspection.OverallScore, inspection.Grade, inspection.InspectorNote)
	return uniqueViolation(err, "inspection")
}

// GetInspectionByOrderID retrieves the inspection filed for an order
func (s *Store) GetInspectionByOrderID(ctx context.Context, orderID int64) (*models.Inspection, error) {
	var inspection models.Inspection
	err := s.q.GetContext(ctx, &inspection, `
		SELECT id, order_id, inspector_id, checkpoints, overall_verdict, overall_score, grade, inspector_note, created_at
		FROM inspections WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, notFound(err, "inspection for order", orderID)
	}
	return &inspection, nil
}
