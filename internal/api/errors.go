package api

import (
	"errors"
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/service"
	"storefront/internal/upload"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors to HTTP responses. Unexpected errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	var (
		verr     *service.ValidationError
		stockErr *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": stockErr.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrConflict), errors.Is(err, cart.ErrContended):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, upload.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No file provided."})
	case errors.Is(err, upload.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "File size exceeds the upload limit."})
	case errors.Is(err, upload.ErrNotImage):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid file type. Only images are allowed."})
	case errors.Is(err, upload.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Image uploads are not configured."})
	default:
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// respondBindError answers a body that could not be decoded
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
