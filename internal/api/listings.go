package api

import (
	"net/http"

	"bike-marketplace/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) searchListings(c *gin.Context) {
	filter := service.ListingFilter{
		Brand:    c.Query("brand"),
		BikeType: c.Query("type"),
		MinPrice: queryInt64(c, "minPrice"),
		MaxPrice: queryInt64(c, "maxPrice"),
		Query:    c.Query("q"),
		Sort:     c.Query("sort"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 20),
	}

	listings, page, err := h.Listings.Search(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	okPage(c, listings, page)
}

func (h *Handler) listingFacets(c *gin.Context) {
	facets, err := h.Listings.Facets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, facets, "")
}

func (h *Handler) getListing(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	listing, err := h.Listings.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, listing, "")
}

func (h *Handler) myListings(c *gin.Context) {
	listings, page, err := h.Listings.ListMine(c.Request.Context(), principal(c),
		c.Query("status"), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	okPage(c, listings, page)
}

func (h *Handler) createListing(c *gin.Context) {
	var req service.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	listing, err := h.Listings.Create(c.Request.Context(), principal(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, listing, "Listing created")
}

func (h *Handler) updateListing(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	var req service.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	listing, err := h.Listings.Update(c.Request.Context(), principal(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, listing, "Listing updated")
}

func (h *Handler) submitListing(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	listing, err := h.Listings.Submit(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, listing, "Listing submitted for review")
}

func (h *Handler) moderationQueue(c *gin.Context) {
	queue, err := h.Listings.Queue(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, queue, "")
}

func (h *Handler) listingStatus(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	listing, err := h.Listings.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"id":              listing.ID,
		"status":          listing.Status,
		"rejectionReason": listing.RejectionReason,
		"submittedAt":     listing.SubmittedAt,
		"reviewedAt":      listing.ReviewedAt,
		"slaDeadline":     listing.SLADeadline(),
	}, "")
}

func (h *Handler) moderateListing(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	var req service.ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	listing, err := h.Listings.Moderate(c.Request.Context(), principal(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, listing, "Listing "+listing.Status)
}
