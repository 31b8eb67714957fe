package service

import (
	"context"
	"fmt"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InspectionService records inspector checklists and feeds the verdict into
// the order state machine
type InspectionService struct {
	repo      Repository
	orders    *OrderService
	publisher EventPublisher
	queueMax  int
	logger    *zap.Logger
}

// NewInspectionService creates a new inspection service
func NewInspectionService(repo Repository, orders *OrderService, publisher EventPublisher, queueMax int) *InspectionService {
	return &InspectionService{
		repo:      repo,
		orders:    orders,
		publisher: publisher,
		queueMax:  queueMax,
		logger:    util.GetLogger(),
	}
}

// SubmitInspectionRequest is an inspector's checklist for one order.
// Verdict and score are computed when omitted.
type SubmitInspectionRequest struct {
	OrderID        int64               `json:"orderId" binding:"required"`
	Checkpoints    []models.Checkpoint `json:"checkpoints" binding:"required,min=1"`
	OverallVerdict string              `json:"overallVerdict,omitempty"`
	OverallScore   *float64            `json:"overallScore,omitempty"`
	InspectorNote  string              `json:"inspectorNote,omitempty"`
}

func validSeverity(s string) bool {
	return s == models.SeverityLow || s == models.SeverityMedium || s == models.SeverityCritical
}

func (r *SubmitInspectionRequest) validate() error {
	verr := &models.ValidationError{}

	if len(r.Checkpoints) == 0 {
		verr.Add("checkpoints", "at least one checkpoint is required")
	}

	seen := make(map[string]bool, len(r.Checkpoints))
	for i, cp := range r.Checkpoints {
		prefix := fmt.Sprintf("checkpoints[%d]", i)

		if cp.Component == "" {
			verr.Add(prefix+".component", "component is required")
		} else if seen[cp.Component] {
			verr.Add(prefix+".component", fmt.Sprintf("duplicate component %q", cp.Component))
		}
		seen[cp.Component] = true

		switch cp.Status {
		case models.CheckpointPass:
			if cp.Severity != "" {
				verr.Add(prefix+".severity", "PASS checkpoints must not carry a severity")
			}
		case models.CheckpointWarn, models.CheckpointFail:
			if cp.Severity == "" {
				verr.Add(prefix+".severity", fmt.Sprintf("severity is required for %s", cp.Status))
			} else if !validSeverity(cp.Severity) {
				verr.Add(prefix+".severity", "severity must be LOW, MEDIUM or CRITICAL")
			}
		default:
			verr.Add(prefix+".status", "status must be PASS, WARN or FAIL")
		}
	}

	if r.OverallScore != nil && (*r.OverallScore < 1 || *r.OverallScore > 10) {
		verr.Add("overallScore", "score must be between 1 and 10")
	}

	switch r.OverallVerdict {
	case "", models.VerdictPassed, models.VerdictFailed, models.VerdictSuggestAdjustment:
	default:
		verr.Add("overallVerdict", "verdict must be PASSED, FAILED or SUGGEST_ADJUSTMENT")
	}
	if r.OverallVerdict != "" && r.OverallVerdict != models.VerdictFailed && hasCriticalFailure(r.Checkpoints) {
		verr.Add("overallVerdict", "a critical failure requires a FAILED verdict")
	}

	return verr.OrNil()
}

// checkTemplate ensures every component of the template was inspected
func checkTemplate(items []ChecklistItem, cps []models.Checkpoint) error {
	got := make(map[string]bool, len(cps))
	for _, cp := range cps {
		got[cp.Component] = true
	}

	verr := &models.ValidationError{}
	for _, item := range items {
		if !got[item.Component] {
			verr.Add("checkpoints."+item.Component, "component was not inspected")
		}
	}
	return verr.OrNil()
}

// Submit validates and stores an inspection, then moves the order to
// INSPECTION_PASSED or REJECTED. An order still in ESCROW_LOCKED is first
// moved to IN_INSPECTION.
func (s *InspectionService) Submit(ctx context.Context, inspector *models.Principal, req *SubmitInspectionRequest) (*models.Inspection, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.Submit", attribute.Int64("order_id", req.OrderID))
	defer span.End()

	if inspector.Role != models.RoleInspector && !inspector.IsAdmin() {
		return nil, fmt.Errorf("inspection submission requires inspector: %w", models.ErrForbidden)
	}
	if err := req.validate(); err != nil {
		util.InspectionsRejectedTotal.Inc()
		return nil, err
	}

	var inspection *models.Inspection
	var out outbox
	err := s.repo.InTx(ctx, func(repo Repository) error {
		order, err := repo.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.InspectionRequired {
			return fmt.Errorf("order %d does not require inspection: %w", order.ID, models.ErrConflict)
		}
		if order.Status != models.OrderStatusEscrowLocked && order.Status != models.OrderStatusInInspection {
			return fmt.Errorf("cannot inspect %s order: %w", order.Status, models.ErrInvalidTransition)
		}

		if _, err := repo.GetInspectionByOrderID(ctx, order.ID); err == nil {
			return fmt.Errorf("order %d already inspected: %w", order.ID, models.ErrConflict)
		}

		listing, err := repo.GetListingByID(ctx, order.ListingID)
		if err != nil {
			return err
		}
		if err := checkTemplate(ChecklistFor(listing.BikeType), req.Checkpoints); err != nil {
			util.InspectionsRejectedTotal.Inc()
			return err
		}

		if order.Status == models.OrderStatusEscrowLocked {
			if err := s.orders.apply(ctx, repo, order, models.OrderStatusInInspection, inspector.UserID, "Inspection started", &out); err != nil {
				return err
			}
		}

		score := ScoreCheckpoints(req.Checkpoints)
		if req.OverallScore != nil {
			score = *req.OverallScore
		}
		verdict := req.OverallVerdict
		if verdict == "" {
			verdict = VerdictFor(req.Checkpoints, score)
		}

		checkpoints := make(models.Checkpoints, len(req.Checkpoints))
		for i, cp := range req.Checkpoints {
			if cp.EvidenceImages == nil {
				cp.EvidenceImages = []string{}
			}
			checkpoints[i] = cp
		}

		inspection = &models.Inspection{
			OrderID:        order.ID,
			InspectorID:    inspector.UserID,
			Checkpoints:    checkpoints,
			OverallVerdict: verdict,
			OverallScore:   score,
			Grade:          GradeFor(score),
			InspectorNote:  req.InspectorNote,
		}
		if err := repo.CreateInspection(ctx, inspection); err != nil {
			return fmt.Errorf("failed to store inspection: %w", err)
		}

		target := models.OrderStatusInspectionPassed
		if verdict == models.VerdictFailed {
			target = models.OrderStatusRejected
		}
		note := fmt.Sprintf("Inspection %s (score %.1f, grade %s)", verdict, score, inspection.Grade)
		if err := s.orders.apply(ctx, repo, order, target, inspector.UserID, note, &out); err != nil {
			return err
		}

		event := &models.InspectionSubmittedEvent{
			BaseEvent:    newBaseEvent(models.EventTypeInspectionSubmitted),
			OrderID:      order.ID,
			InspectionID: inspection.ID,
			BuyerID:      order.BuyerID,
			SellerID:     order.SellerID,
			Verdict:      verdict,
			Score:        score,
			Grade:        inspection.Grade,
		}
		out.add(func(ctx context.Context, pub EventPublisher) error {
			util.InspectionsSubmittedTotal.WithLabelValues(verdict).Inc()
			return pub.PublishInspectionSubmitted(ctx, event)
		})
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	out.flush(ctx, s.publisher, s.logger)

	s.logger.Info("Inspection submitted",
		zap.Int64("order_id", inspection.OrderID),
		zap.Int64("inspector_id", inspection.InspectorID),
		zap.String("verdict", inspection.OverallVerdict),
		zap.Float64("score", inspection.OverallScore))
	return inspection, nil
}

// GetByOrder returns the inspection filed for an order
func (s *InspectionService) GetByOrder(ctx context.Context, viewer *models.Principal, orderID int64) (*models.Inspection, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.GetByOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanView(viewer) {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrForbidden)
	}
	return s.repo.GetInspectionByOrderID(ctx, orderID)
}

// Checklist returns the template the inspector must fill for an order
func (s *InspectionService) Checklist(ctx context.Context, orderID int64) (*Checklist, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.Checklist", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	listing, err := s.repo.GetListingByID(ctx, order.ListingID)
	if err != nil {
		return nil, err
	}

	return &Checklist{
		OrderID:  order.ID,
		BikeType: listing.BikeType,
		Items:    ChecklistFor(listing.BikeType),
	}, nil
}

// Pending lists orders waiting for an inspection, oldest first
func (s *InspectionService) Pending(ctx context.Context, limit int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "InspectionService.Pending")
	defer span.End()

	if limit < 1 || limit > s.queueMax {
		limit = s.queueMax
	}
	return s.repo.ListInspectionQueue(ctx, limit)
}
