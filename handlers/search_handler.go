package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"artelex-backend/models"
	"artelex-backend/service"

	"github.com/gin-gonic/gin"
)

// SearchHandler handles HTTP requests for raw hybrid search.
type SearchHandler struct {
	searchService *service.SearchService
	timeout       time.Duration
}

// NewSearchHandler creates a new search handler. timeout bounds the
// embedding call and both store queries; zero disables it.
func NewSearchHandler(searchService *service.SearchService, timeout time.Duration) *SearchHandler {
	return &SearchHandler{searchService: searchService, timeout: timeout}
}

// Search handles POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	results, err := h.searchService.Search(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TIMEOUT",
					"message": "Search timed out",
				},
			})
		case errors.Is(err, service.ErrQueryTooShort):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "QUERY_TOO_SHORT",
					"message": "Query must be at least 10 characters",
				},
			})
		case errors.Is(err, service.ErrQueryTooLong):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "QUERY_TOO_LONG",
					"message": "Query must be at most 500 characters",
				},
			})
		case errors.Is(err, service.ErrInvalidLimit):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_LIMIT",
					"message": err.Error(),
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "Search failed",
				},
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"results": results,
			"count":   len(results),
		},
	})
}
