package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const facetsCacheKey = "listings:facets"

// ListingService manages listings and the moderation queue
type ListingService struct {
	repo      Repository
	cache     Cache
	publisher EventPublisher
	facetTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(repo Repository, cache Cache, publisher EventPublisher, facetTTL time.Duration) *ListingService {
	return &ListingService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		facetTTL:  facetTTL,
		now:       time.Now,
		logger:    util.ComponentLogger("listings"),
	}
}

// ListingRequest carries the seller-editable fields of a listing
type ListingRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description" binding:"max=5000"`
	Brand       string   `json:"brand" binding:"required,max=100"`
	Type        string   `json:"type" binding:"required"`
	FrameSize   string   `json:"frameSize,omitempty" binding:"max=20"`
	Year        int      `json:"year,omitempty" binding:"omitempty,min=1950,max=2100"`
	Price       int64    `json:"price" binding:"required,gt=0"`
	Images      []string `json:"images,omitempty"`
}

func (r *ListingRequest) validate() error {
	verr := &models.ValidationError{}
	if strings.TrimSpace(r.Title) == "" {
		verr.Add("title", "title is required")
	}
	if strings.TrimSpace(r.Brand) == "" {
		verr.Add("brand", "brand is required")
	}
	switch strings.ToUpper(r.Type) {
	case models.BikeTypeRoad, models.BikeTypeMTB, models.BikeTypeGravel:
	default:
		verr.Add("type", "type must be ROAD, MTB or GRAVEL")
	}
	if r.Price <= 0 {
		verr.Add("price", "price must be positive")
	}
	return verr.OrNil()
}

func (r *ListingRequest) applyTo(l *models.Listing) {
	l.Title = strings.TrimSpace(r.Title)
	l.Description = r.Description
	l.Brand = strings.TrimSpace(r.Brand)
	l.BikeType = strings.ToUpper(r.Type)
	l.FrameSize = r.FrameSize
	l.ModelYear = r.Year
	l.Price = r.Price
	l.Images = models.StringList(r.Images)
	if l.Images == nil {
		l.Images = models.StringList{}
	}
}

// Create stores a new DRAFT listing owned by the seller
func (s *ListingService) Create(ctx context.Context, seller *models.Principal, req *ListingRequest) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Create")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	listing := &models.Listing{SellerID: seller.UserID, Status: models.ListingStatusDraft}
	req.applyTo(listing)

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.logger.Info("Listing created", zap.Int64("listing_id", listing.ID), zap.Int64("seller_id", seller.UserID))
	return listing, nil
}

// lockOwned locks a listing the caller owns and checks it is editable
func lockOwned(ctx context.Context, repo Repository, seller *models.Principal, id int64) (*models.Listing, error) {
	listing, err := repo.LockListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != seller.UserID {
		return nil, fmt.Errorf("listing %d: %w", id, models.ErrForbidden)
	}
	if listing.Status != models.ListingStatusDraft && listing.Status != models.ListingStatusRejected {
		return nil, fmt.Errorf("listing %d is %s: %w", id, listing.Status, models.ErrInvalidTransition)
	}
	return listing, nil
}

// Update edits a DRAFT or REJECTED listing
func (s *ListingService) Update(ctx context.Context, seller *models.Principal, id int64, req *ListingRequest) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Update", attribute.Int64("listing_id", id))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	var listing *models.Listing
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if listing, err = lockOwned(ctx, repo, seller, id); err != nil {
			return err
		}
		req.applyTo(listing)
		return repo.UpdateListing(ctx, listing)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return listing, nil
}

// Submit puts a listing in the moderation queue, stamping the priority and
// approval window of the seller's plan
func (s *ListingService) Submit(ctx context.Context, seller *models.Principal, id int64) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Submit", attribute.Int64("listing_id", id))
	defer span.End()

	plan := models.PlanFor(seller.PlanType)

	var listing *models.Listing
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if listing, err = lockOwned(ctx, repo, seller, id); err != nil {
			return err
		}

		now := s.now().UTC()
		listing.Status = models.ListingStatusPendingApproval
		listing.SellerPlanType = plan.Type
		listing.PriorityLevel = plan.PriorityLevel
		listing.ApprovalTimeHours = plan.ApprovalTimeHours
		listing.SubmittedAt = &now
		listing.ReviewedAt = nil
		listing.RejectionReason = ""
		return repo.UpdateListing(ctx, listing)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	event := &models.ListingModeratedEvent{
		BaseEvent: newBaseEvent(models.EventTypeListingSubmitted),
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Status:    listing.Status,
	}
	if err := s.publisher.PublishListingModerated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ListingSubmitted event", zap.Error(err))
	}

	s.logger.Info("Listing submitted",
		zap.Int64("listing_id", listing.ID),
		zap.String("plan", plan.Type),
		zap.Int("priority", plan.PriorityLevel))
	return listing, nil
}

// ModerationRequest is an admin decision on a pending listing
type ModerationRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

// Moderation decisions accepted by Moderate
const (
	DecisionApprove = "APPROVED"
	DecisionReject  = "REJECTED"
)

// Moderate approves or rejects a pending listing. Rejection needs a reason.
// PUBLISHED is accepted as a synonym for approval.
func (s *ListingService) Moderate(ctx context.Context, admin *models.Principal, id int64, req *ModerationRequest) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Moderate", attribute.Int64("listing_id", id))
	defer span.End()

	if !admin.IsAdmin() {
		return nil, fmt.Errorf("moderation requires admin: %w", models.ErrForbidden)
	}

	decision := strings.ToUpper(req.Status)
	var target string
	switch decision {
	case DecisionApprove, models.ListingStatusPublished:
		decision, target = DecisionApprove, models.ListingStatusPublished
	case DecisionReject:
		target = models.ListingStatusRejected
		if strings.TrimSpace(req.Reason) == "" {
			return nil, models.NewValidationError("reason", "a rejection reason is required")
		}
	default:
		return nil, models.NewValidationError("status", "status must be APPROVED or REJECTED")
	}

	var listing *models.Listing
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if listing, err = repo.LockListing(ctx, id); err != nil {
			return err
		}
		if listing.Status != models.ListingStatusPendingApproval {
			return fmt.Errorf("listing %d is %s: %w", id, listing.Status, models.ErrInvalidTransition)
		}

		now := s.now().UTC()
		listing.Status = target
		listing.ReviewedAt = &now
		if target == models.ListingStatusRejected {
			listing.RejectionReason = strings.TrimSpace(req.Reason)
		}
		return repo.UpdateListing(ctx, listing)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.ListingsModeratedTotal.WithLabelValues(strings.ToLower(decision)).Inc()
	s.invalidateFacets(ctx)

	event := &models.ListingModeratedEvent{
		BaseEvent: newBaseEvent(models.EventTypeListingModerated),
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Status:    listing.Status,
		Reason:    listing.RejectionReason,
	}
	if err := s.publisher.PublishListingModerated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ListingModerated event", zap.Error(err))
	}

	s.logger.Info("Listing moderated",
		zap.Int64("listing_id", listing.ID),
		zap.Int64("admin_id", admin.UserID),
		zap.String("status", listing.Status))
	return listing, nil
}

// Get returns a listing. Listings that are not on sale are only visible to
// their seller and to admins.
func (s *ListingService) Get(ctx context.Context, viewer *models.Principal, id int64) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Get", attribute.Int64("listing_id", id))
	defer span.End()

	listing, err := s.repo.GetListingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch listing.Status {
	case models.ListingStatusPublished, models.ListingStatusSold:
		return listing, nil
	}
	if viewer.IsAdmin() || (viewer != nil && viewer.UserID == listing.SellerID) {
		return listing, nil
	}
	return nil, fmt.Errorf("listing %d: %w", id, models.ErrNotFound)
}

// QueueEntry is a pending listing with its review deadline
type QueueEntry struct {
	models.Listing
	SLADeadline *time.Time `json:"slaDeadline"`
	Overdue     bool       `json:"overdue"`
}

// Queue returns pending listings in review order: higher priority first,
// then earlier submission
func (s *ListingService) Queue(ctx context.Context, limit int) ([]QueueEntry, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Queue")
	defer span.End()

	_, limit = normalizePage(1, limit, 200)
	listings, err := s.repo.ListPendingListings(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entries := make([]QueueEntry, 0, len(listings))
	for _, l := range listings {
		deadline := l.SLADeadline()
		entries = append(entries, QueueEntry{
			Listing:     l,
			SLADeadline: deadline,
			Overdue:     deadline != nil && deadline.Before(now),
		})
	}
	return entries, nil
}

// Search returns published listings matching the filter
func (s *ListingService) Search(ctx context.Context, filter ListingFilter) ([]models.Listing, models.Pagination, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Search")
	defer span.End()

	switch filter.Sort {
	case "", SortNewest, SortPriceAsc, SortPriceDesc:
	default:
		return nil, models.Pagination{}, models.NewValidationError("sort", "sort must be newest, price_asc or price_desc")
	}
	if filter.MinPrice > 0 && filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, models.Pagination{}, models.NewValidationError("minPrice", "minPrice must not exceed maxPrice")
	}

	filter.Status = models.ListingStatusPublished
	filter.SellerID = 0
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit, 100)

	listings, total, err := s.repo.SearchListings(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return listings, models.NewPagination(total, filter.Page, filter.Limit), nil
}

// ListMine returns the seller's own listings in any status
func (s *ListingService) ListMine(ctx context.Context, seller *models.Principal, status string, page, limit int) ([]models.Listing, models.Pagination, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.ListMine")
	defer span.End()

	page, limit = normalizePage(page, limit, 100)
	filter := ListingFilter{SellerID: seller.UserID, Status: strings.ToUpper(status), Page: page, Limit: limit}

	listings, total, err := s.repo.SearchListings(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return listings, models.NewPagination(total, page, limit), nil
}

// Facets summarises published listings. Results are cached until the next
// moderation decision or the cache TTL.
func (s *ListingService) Facets(ctx context.Context) (*Facets, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Facets")
	defer span.End()

	if raw, ok, err := s.cache.GetCache(ctx, facetsCacheKey); err != nil {
		s.logger.Warn("Facet cache read failed", zap.Error(err))
	} else if ok {
		var facets Facets
		if err := json.Unmarshal(raw, &facets); err == nil {
			return &facets, nil
		}
	}

	facets, err := s.repo.ListingFacets(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(facets); err == nil {
		if err := s.cache.SetCache(ctx, facetsCacheKey, raw, s.facetTTL); err != nil {
			s.logger.Warn("Facet cache write failed", zap.Error(err))
		}
	}
	return facets, nil
}

func (s *ListingService) invalidateFacets(ctx context.Context) {
	if err := s.cache.DeleteCache(ctx, facetsCacheKey); err != nil {
		s.logger.Warn("Facet cache invalidation failed", zap.Error(err))
	}
}

// RefreshOverdue counts pending listings past their approval window and
// exports the count as a gauge
func (s *ListingService) RefreshOverdue(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.RefreshOverdue")
	defer span.End()

	n, err := s.repo.CountOverdueListings(ctx, s.now())
	if err != nil {
		return 0, err
	}
	util.ListingsPendingOverdue.Set(float64(n))
	return n, nil
}
