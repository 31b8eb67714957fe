package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"
)

const listingColumns = `id, seller_id, title, description, brand, bike_type, frame_size, model_year, price, images,
	status, seller_plan_type, priority_level, approval_time_hours, rejection_reason, submitted_at, reviewed_at,
	created_at, updated_at`

// CreateListing creates a new listing
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	query := `
		INSERT INTO listings (seller_id, title, description, brand, bike_type, frame_size, model_year, price, images, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.q.GetContext(ctx, listing, query,
		listing.SellerID, listing.Title, listing.Description, listing.Brand, listing.BikeType,
		listing.FrameSize, listing.ModelYear, listing.Price, listing.Images, listing.Status)
}

// GetListingByID retrieves a listing by ID
func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.q.GetContext(ctx, &listing, "SELECT "+listingColumns+" FROM listings WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "listing", id)
	}
	return &listing, nil
}

// LockListing reads a listing under a row lock
func (s *Store) LockListing(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.q.GetContext(ctx, &listing, "SELECT "+listingColumns+" FROM listings WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "listing", id)
	}
	return &listing, nil
}

// UpdateListing writes every mutable listing field
func (s *Store) UpdateListing(ctx context.Context, listing *models.Listing) error {
	return s.q.GetContext(ctx, &listing.UpdatedAt, `
		UPDATE listings SET
			title = $1, description = $2, brand = $3, bike_type = $4, frame_size = $5, model_year = $6,
			price = $7, images = $8, status = $9, seller_plan_type = $10, priority_level = $11,
			approval_time_hours = $12, rejection_reason = $13, submitted_at = $14, reviewed_at = $15,
			updated_at = NOW()
		WHERE id = $16
		RETURNING updated_at`,
		listing.Title, listing.Description, listing.Brand, listing.BikeType, listing.FrameSize,
		listing.ModelYear, listing.Price, listing.Images, listing.Status, listing.SellerPlanType,
		listing.PriorityLevel, listing.ApprovalTimeHours, listing.RejectionReason,
		listing.SubmittedAt, listing.ReviewedAt, listing.ID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes q match literally inside a LIKE pattern
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}

// SearchListings returns one page of listings matching the filter
func (s *Store) SearchListings(ctx context.Context, filter service.ListingFilter) ([]models.Listing, int, error) {
	var where []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.SellerID != 0 {
		add("seller_id = $%d", filter.SellerID)
	}
	if filter.Brand != "" {
		add("LOWER(brand) = LOWER($%d)", filter.Brand)
	}
	if filter.BikeType != "" {
		add("bike_type = $%d", strings.ToUpper(filter.BikeType))
	}
	if filter.MinPrice > 0 {
		add("price >= $%d", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		add("price <= $%d", filter.MaxPrice)
	}
	if filter.Query != "" {
		add(`title ILIKE $%d ESCAPE '\'`, "%"+escapeLike(filter.Query)+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM listings"+clause, args...); err != nil {
		return nil, 0, err
	}

	orderBy := "created_at DESC, id DESC"
	switch filter.Sort {
	case service.SortPriceAsc:
		orderBy = "price ASC, id ASC"
	case service.SortPriceDesc:
		orderBy = "price DESC, id DESC"
	}

	args = append(args, filter.Limit, offset(filter.Page, filter.Limit))
	query := fmt.Sprintf("SELECT %s FROM listings%s ORDER BY %s LIMIT $%d OFFSET $%d",
		listingColumns, clause, orderBy, len(args)-1, len(args))

	listings := []models.Listing{}
	if err := s.q.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// ListPendingListings returns the moderation queue in review order
func (s *Store) ListPendingListings(ctx context.Context, limit int) ([]models.Listing, error) {
	listings := []models.Listing{}
	err := s.q.SelectContext(ctx, &listings, `
		SELECT `+listingColumns+` FROM listings
		WHERE status = $1
		ORDER BY priority_level DESC, submitted_at ASC, id ASC
		LIMIT $2`,
		models.ListingStatusPendingApproval, limit)
	return listings, err
}

// CountOverdueListings counts pending listings past their approval window
func (s *Store) CountOverdueListings(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.q.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM listings
		WHERE status = $1
		  AND submitted_at + make_interval(hours => approval_time_hours) < $2`,
		models.ListingStatusPendingApproval, now)
	return n, err
}

// ListingFacets aggregates published listings by brand, type and price
func (s *Store) ListingFacets(ctx context.Context) (*service.Facets, error) {
	facets := &service.Facets{Brands: []service.FacetCount{}, Types: []service.FacetCount{}}

	if err := s.q.SelectContext(ctx, &facets.Brands, `
		SELECT brand AS value, COUNT(*) AS count FROM listings
		WHERE status = $1 GROUP BY brand ORDER BY count DESC, value`,
		models.ListingStatusPublished); err != nil {
		return nil, err
	}

	if err := s.q.SelectContext(ctx, &facets.Types, `
		SELECT bike_type AS value, COUNT(*) AS count FROM listings
		WHERE status = $1 GROUP BY bike_type ORDER BY count DESC, value`,
		models.ListingStatusPublished); err != nil {
		return nil, err
	}

	var bounds struct {
		Min   int64 `db:"min_price"`
		Max   int64 `db:"max_price"`
		Total int   `db:"total"`
	}
	if err := s.q.GetContext(ctx, &bounds, `
		SELECT COALESCE(MIN(price), 0) AS min_price, COALESCE(MAX(price), 0) AS max_price, COUNT(*) AS total
		FROM listings WHERE status = $1`,
		models.ListingStatusPublished); err != nil {
		return nil, err
	}

	facets.MinPrice = bounds.Min
	facets.MaxPrice = bounds.Max
	facets.Total = bounds.Total
	return facets, nil
}
