package api

import (
	"errors"
	"net/http"
	"strings"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// envelope is the response shape every client screen reads
type envelope struct {
	Success    bool               `json:"success"`
	Data       interface{}        `json:"data,omitempty"`
	Message    string             `json:"message,omitempty"`
	Errors     map[string]string  `json:"errors,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func okPage(c *gin.Context, data interface{}, page models.Pagination) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Pagination: &page})
}

func fail(c *gin.Context, status int, message string, fields map[string]string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Errors: fields})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the failure envelope. Internal errors are logged
// and replaced with a generic message.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		fail(c, status, "Internal server error", nil)
		return
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		fail(c, status, "Validation failed", verr.Fields)
		return
	}
	fail(c, status, err.Error(), nil)
}

// bindError converts a gin binding failure into per-field messages
func bindError(c *gin.Context, err error) {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		fail(c, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		name := fe.Field()
		if name != "" {
			name = strings.ToLower(name[:1]) + name[1:]
		}
		fields[name] = "failed on the '" + fe.Tag() + "' rule"
	}
	fail(c, http.StatusBadRequest, "Validation failed", fields)
}
