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

// ChatHandler handles HTTP requests for the legal assistant chat.
type ChatHandler struct {
	ragService *service.RAGService
	timeout    time.Duration
}

// NewChatHandler creates a new chat handler. timeout bounds the whole
// query path (classification, retrieval, generation); zero disables it.
func NewChatHandler(ragService *service.RAGService, timeout time.Duration) *ChatHandler {
	return &ChatHandler{ragService: ragService, timeout: timeout}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
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

	if err := service.ValidateQuery(req.Query); err != nil {
		code := "QUERY_TOO_SHORT"
		message := "Query must be at least 10 characters"
		if errors.Is(err, service.ErrQueryTooLong) {
			code = "QUERY_TOO_LONG"
			message = "Query must be at most 500 characters"
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": message,
			},
		})
		return
	}

	area := ""
	if req.Filters != nil {
		area = req.Filters.Area
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.ragService.AnswerQuery(ctx, req.Query, req.SessionID, area)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TIMEOUT",
					"message": "Query timed out",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to answer query",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
