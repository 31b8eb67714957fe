package service_test

import (
	"context"
	"testing"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingModerationFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l, err := e.listings.Create(ctx, seller, &service.ListingRequest{
		Title: "Specialized Stumpjumper", Brand: "Specialized", Type: "mtb", Price: 45000000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusDraft, l.Status)
	assert.Equal(t, models.BikeTypeMTB, l.BikeType)

	_, err = e.listings.Moderate(ctx, admin, l.ID, &service.ModerationRequest{Status: service.DecisionApprove})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	l, err = e.listings.Submit(ctx, seller, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPendingApproval, l.Status)
	assert.Equal(t, 1, l.PriorityLevel)
	assert.Equal(t, 72, l.ApprovalTimeHours)
	require.NotNil(t, l.SubmittedAt)

	_, err = e.listings.Moderate(ctx, admin, l.ID, &service.ModerationRequest{Status: service.DecisionReject})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "reason")

	_, err = e.listings.Moderate(ctx, seller, l.ID, &service.ModerationRequest{Status: service.DecisionApprove})
	assert.ErrorIs(t, err, models.ErrForbidden)

	l, err = e.listings.Moderate(ctx, admin, l.ID, &service.ModerationRequest{Status: service.DecisionReject, Reason: "Photos are blurry"})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusRejected, l.Status)
	assert.Equal(t, "Photos are blurry", l.RejectionReason)

	l, err = e.listings.Update(ctx, seller, l.ID, &service.ListingRequest{
		Title: "Specialized Stumpjumper", Brand: "Specialized", Type: "MTB", Price: 44000000,
		Images: []string{"https://cdn.example.com/1.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(44000000), l.Price)

	l, err = e.listings.Submit(ctx, seller, l.ID)
	require.NoError(t, err)
	assert.Empty(t, l.RejectionReason)

	l, err = e.listings.Moderate(ctx, admin, l.ID, &service.ModerationRequest{Status: "PUBLISHED"})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPublished, l.Status)
	assert.NotNil(t, l.ReviewedAt)

	_, err = e.listings.Update(ctx, seller, l.ID, &service.ListingRequest{Title: "x", Brand: "y", Type: "MTB", Price: 1})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	assert.Equal(t, 2, e.pub.count(models.EventTypeListingSubmitted))
	assert.Equal(t, 2, e.pub.count(models.EventTypeListingModerated))
}

func TestListingOwnershipAndVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l, err := e.listings.Create(ctx, seller, &service.ListingRequest{Title: "Giant TCR", Brand: "Giant", Type: "ROAD", Price: 30000000})
	require.NoError(t, err)

	other := &models.Principal{UserID: 99, Role: models.RoleSeller}
	_, err = e.listings.Submit(ctx, other, l.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.listings.Get(ctx, nil, l.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := e.listings.Get(ctx, seller, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)

	_, err = e.listings.Create(ctx, seller, &service.ListingRequest{Title: "x", Brand: "y", Type: "BMX", Price: 1})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")
}

func TestModerationQueueOrdering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	service.SetListingClock(e.listings, func() time.Time { return clock })

	submit := func(plan string) int64 {
		s := &models.Principal{UserID: seller.UserID, Role: models.RoleSeller, PlanType: plan}
		l, err := e.listings.Create(ctx, s, &service.ListingRequest{Title: plan, Brand: "Trek", Type: "ROAD", Price: 1000})
		require.NoError(t, err)
		_, err = e.listings.Submit(ctx, s, l.ID)
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
		return l.ID
	}

	freeFirst := submit(models.PlanFree)
	premiumLater := submit(models.PlanPremium)
	basic := submit(models.PlanBasic)
	premiumLatest := submit(models.PlanPremium)
	freeSecond := submit("")

	queue, err := e.listings.Queue(ctx, 50)
	require.NoError(t, err)

	ids := []int64{}
	for _, q := range queue {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []int64{premiumLater, premiumLatest, basic, freeFirst, freeSecond}, ids)

	require.NotNil(t, queue[0].SLADeadline)
	assert.Equal(t, queue[0].SubmittedAt.Add(24*time.Hour), *queue[0].SLADeadline)
	assert.False(t, queue[0].Overdue)

	clock = clock.Add(25 * time.Hour)
	n, err := e.listings.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSearchAndFacets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.publishedListing(t, models.BikeTypeRoad, 30000000)
	e.publishedListing(t, models.BikeTypeGravel, 25000000)
	_, err := e.listings.Create(ctx, seller, &service.ListingRequest{Title: "Draft", Brand: "Canyon", Type: "ROAD", Price: 1})
	require.NoError(t, err)

	results, page, err := e.listings.Search(ctx, service.ListingFilter{Sort: service.SortPriceAsc, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(25000000), results[0].Price)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Pages)

	road, _, err := e.listings.Search(ctx, service.ListingFilter{BikeType: "road"})
	require.NoError(t, err)
	assert.Len(t, road, 1)

	_, _, err = e.listings.Search(ctx, service.ListingFilter{Sort: "cheapest"})
	assert.Error(t, err)

	facets, err := e.listings.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, facets.Total)
	assert.Equal(t, int64(25000000), facets.MinPrice)

	// cached until the next moderation decision
	e.publishedListing(t, models.BikeTypeMTB, 50000000)
	facets, err = e.listings.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, facets.Total)

	mine, _, err := e.listings.ListMine(ctx, seller, "", 1, 20)
	require.NoError(t, err)
	assert.Len(t, mine, 4)
}
