package service

import (
	"context"
	"fmt"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"go.uber.org/zap"
)

// NotificationService turns domain events into per-user feed entries. Each
// event is applied at most once.
type NotificationService struct {
	repo   Repository
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo Repository) *NotificationService {
	return &NotificationService{
		repo:   repo,
		logger: util.ComponentLogger("notifications"),
	}
}

type notice struct {
	userID  int64
	message string
}

// deliver writes the notices and marks the event processed in one transaction
func (s *NotificationService) deliver(ctx context.Context, base models.BaseEvent, notices ...notice) error {
	ctx, span := util.StartSpan(ctx, "NotificationService."+base.EventType)
	defer span.End()

	written := 0
	err := s.repo.InTx(ctx, func(repo Repository) error {
		processed, err := repo.IsEventProcessed(ctx, base.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			s.logger.Info("Event already processed", zap.String("event_id", base.EventID))
			return nil
		}

		for _, n := range notices {
			if n.userID == 0 {
				continue
			}
			err := repo.CreateNotification(ctx, &models.Notification{
				UserID:  n.userID,
				EventID: base.EventID,
				Type:    base.EventType,
				Message: n.message,
			})
			if err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
			written++
		}

		return repo.MarkEventProcessed(ctx, base.EventID, base.EventType)
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	util.NotificationsWrittenTotal.Add(float64(written))
	return nil
}

// HandleOrderCreated notifies the seller of a new purchase
func (s *NotificationService) HandleOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return s.deliver(ctx, e.BaseEvent,
		notice{e.SellerID, fmt.Sprintf("New order #%d for listing #%d", e.OrderID, e.ListingID)},
	)
}

// HandleOrderStatusChanged notifies both parties of the new order status
func (s *NotificationService) HandleOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	msg := fmt.Sprintf("Order #%d is now %s", e.OrderID, e.ToStatus)
	return s.deliver(ctx, e.BaseEvent,
		notice{e.BuyerID, msg},
		notice{e.SellerID, msg},
	)
}

// HandlePayoutReleased notifies the seller that funds arrived
func (s *NotificationService) HandlePayoutReleased(ctx context.Context, e *models.PayoutReleasedEvent) error {
	return s.deliver(ctx, e.BaseEvent,
		notice{e.SellerID, fmt.Sprintf("Payout of %d for order #%d credited to your wallet", e.SellerAmount, e.OrderID)},
	)
}

// HandleEscrowRefunded notifies the buyer of a refund
func (s *NotificationService) HandleEscrowRefunded(ctx context.Context, e *models.EscrowRefundedEvent) error {
	return s.deliver(ctx, e.BaseEvent,
		notice{e.BuyerID, fmt.Sprintf("Refund of %d for order #%d returned to your wallet", e.Amount, e.OrderID)},
	)
}

// HandleInspectionSubmitted notifies both parties of the verdict
func (s *NotificationService) HandleInspectionSubmitted(ctx context.Context, e *models.InspectionSubmittedEvent) error {
	msg := fmt.Sprintf("Inspection for order #%d: %s (score %.1f, grade %s)", e.OrderID, e.Verdict, e.Score, e.Grade)
	return s.deliver(ctx, e.BaseEvent,
		notice{e.BuyerID, msg},
		notice{e.SellerID, msg},
	)
}

// HandleListingModerated notifies the seller of a moderation step
func (s *NotificationService) HandleListingModerated(ctx context.Context, e *models.ListingModeratedEvent) error {
	var msg string
	switch e.Status {
	case models.ListingStatusPendingApproval:
		msg = fmt.Sprintf("Listing #%d submitted for review", e.ListingID)
	case models.ListingStatusRejected:
		msg = fmt.Sprintf("Listing #%d was rejected: %s", e.ListingID, e.Reason)
	default:
		msg = fmt.Sprintf("Listing #%d is now %s", e.ListingID, e.Status)
	}
	return s.deliver(ctx, e.BaseEvent, notice{e.SellerID, msg})
}

// HandleWithdrawal notifies the user of a withdrawal request or decision
func (s *NotificationService) HandleWithdrawal(ctx context.Context, e *models.WithdrawalEvent) error {
	msg := fmt.Sprintf("Withdrawal #%d of %d is %s", e.WithdrawalID, e.Amount, e.Status)
	return s.deliver(ctx, e.BaseEvent, notice{e.UserID, msg})
}

// List returns the caller's most recent notifications
func (s *NotificationService) List(ctx context.Context, user *models.Principal, limit int) ([]models.Notification, error) {
	ctx, span := util.StartSpan(ctx, "NotificationService.List")
	defer span.End()

	_, limit = normalizePage(1, limit, 100)
	return s.repo.ListNotifications(ctx, user.UserID, limit)
}
