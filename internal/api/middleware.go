package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// SessionResolver looks up the principal behind a bearer token
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*models.Principal, error)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// authRequired rejects requests without a valid session
func authRequired(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			fail(c, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		p, err := sessions.GetSession(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// authOptional attaches the principal when a valid token is present
func authOptional(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if p, err := sessions.GetSession(c.Request.Context(), token); err == nil {
				c.Set(principalKey, p)
			}
		}
		c.Next()
	}
}

// requireRole allows only the listed roles through
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		for _, r := range roles {
			if p != nil && p.Role == r {
				c.Next()
				return
			}
		}
		fail(c, http.StatusForbidden, models.ErrForbidden.Error(), nil)
	}
}

// principal returns the caller, or nil for anonymous requests
func principal(c *gin.Context) *models.Principal {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
