package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"artelex-backend/ingest"
	"artelex-backend/models"
	"artelex-backend/repository"

	"github.com/gin-gonic/gin"
)

// SourceHandler handles HTTP requests for the corpus catalog, ingested
// documents, and the admin ingestion triggers.
type SourceHandler struct {
	sourceRepo   *repository.SourceRepository
	chunkRepo    *repository.ChunkRepository
	orchestrator *ingest.Orchestrator
	logger       *slog.Logger
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(
	sourceRepo *repository.SourceRepository,
	chunkRepo *repository.ChunkRepository,
	orchestrator *ingest.Orchestrator,
	logger *slog.Logger,
) *SourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceHandler{
		sourceRepo:   sourceRepo,
		chunkRepo:    chunkRepo,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ListSources handles GET /api/sources
func (h *SourceHandler) ListSources(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	filter := models.SourceFilter{
		Area: c.Query("area"),
	}
	if p := c.Query("priority"); p != "" {
		priority, err := models.ParsePriority(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_PRIORITY",
					"message": err.Error(),
				},
			})
			return
		}
		filter.Priority = priority
	}
	if n := c.Query("nature"); n != "" {
		nature, err := models.ParseNature(n)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_NATURE",
					"message": err.Error(),
				},
			})
			return
		}
		filter.Nature = nature
	}
	if s := c.Query("state"); s != "" {
		filter.State = models.SourceState(s)
	}

	sources, err := h.sourceRepo.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": "Failed to list sources",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"sources": sources,
			"count":   len(sources),
			"limit":   limit,
			"offset":  offset,
		},
	})
}

// GetDocument handles GET /api/documents/:official_id
func (h *SourceHandler) GetDocument(c *gin.Context) {
	officialID := c.Param("official_id")

	doc, chunks, err := h.chunkRepo.GetDocument(c.Request.Context(), officialID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Document not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": "Failed to retrieve document",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"document": doc,
			"chunks":   chunks,
		},
	})
}

// IngestSource handles POST /api/admin/ingest/:official_id
//
// The ingestion itself runs in the background on a fresh context so a
// dropped admin connection does not abort the pipeline; the state machine
// is the progress surface.
func (h *SourceHandler) IngestSource(c *gin.Context) {
	officialID := c.Param("official_id")

	if _, err := h.sourceRepo.GetByOfficialID(c.Request.Context(), officialID); err != nil {
		if errors.Is(err, repository.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Source not found in catalog",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": "Failed to look up source",
			},
		})
		return
	}

	go func() {
		if err := h.orchestrator.IngestSource(context.Background(), officialID); err != nil &&
			!errors.Is(err, ingest.ErrAlreadyIngesting) {
			h.logger.Error("admin ingestion failed",
				"component", "handlers", "official_id", officialID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"official_id": officialID,
			"message":     "Ingestion started. Poll /api/sources for state.",
		},
	})
}

// IngestByPriority handles POST /api/admin/ingest?priority=P1
func (h *SourceHandler) IngestByPriority(c *gin.Context) {
	priority, err := models.ParsePriority(c.DefaultQuery("priority", "P1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_PRIORITY",
				"message": err.Error(),
			},
		})
		return
	}

	go func() {
		if err := h.orchestrator.IngestAllByPriority(context.Background(), priority); err != nil {
			h.logger.Error("batch ingestion failed",
				"component", "handlers", "priority", priority, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"priority": priority,
			"message":  "Batch ingestion started. Poll /api/sources for state.",
		},
	})
}
