package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wardroberry/wardroberry/internal/api/domain"
	"github.com/wardroberry/wardroberry/internal/api/dto"
	"github.com/wardroberry/wardroberry/internal/api/model"
	"github.com/wardroberry/wardroberry/internal/api/storage"
	"github.com/wardroberry/wardroberry/internal/queue"
)

// UploadGarment handles POST /api/v1/garments
// Accepts a multipart garment image, creates the pending status record,
// stores the original image, and enqueues the processing job. Processing is
// asynchronous; clients poll GET /api/v1/garments/:garment_id.
func (h *GarmentHandler) UploadGarment(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id is required",
		})
		return
	}
	if _, err := uuid.Parse(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id must be a valid UUID",
		})
		return
	}

	priority := c.PostForm("priority") == "true"

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.blobStore.ValidateImage(contentType, fileHeader.Size); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}

	ctx := c.Request.Context()
	garmentID := uuid.New().String()

	originalURL, err := h.blobStore.UploadOriginal(ctx, userID, fileHeader.Filename, content, contentType)
	if err != nil {
		h.logger.Error("Failed to store original image",
			slog.String("garment_id", garmentID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store image",
		})
		return
	}

	now := time.Now().UTC()
	garment := model.Garment{
		ID:               garmentID,
		UserID:           userID,
		FileName:         fileHeader.Filename,
		OriginalImageURL: originalURL,
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.storage.CreateGarment(ctx, &garment); err != nil {
		h.logger.Error("Failed to create garment record",
			slog.String("garment_id", garmentID),
			slog.String("error", err.Error()),
		)
		// Don't leave an orphaned image behind.
		if delErr := h.blobStore.Delete(ctx, originalURL); delErr != nil {
			h.logger.Warn("Failed to clean up original image",
				slog.String("garment_id", garmentID),
				slog.String("error", delErr.Error()),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create garment",
		})
		return
	}

	job := queue.NewJob(garmentID, userID, content, fileHeader.Filename, contentType, priority)
	if err := h.queue.Push(ctx, job, priority); err != nil {
		h.logger.Error("Failed to enqueue processing job",
			slog.String("garment_id", garmentID),
			slog.String("error", err.Error()),
		)
		// Roll back so the client can retry the upload cleanly.
		if delErr := h.storage.DeleteGarment(ctx, garmentID); delErr != nil {
			h.logger.Warn("Failed to roll back garment record",
				slog.String("garment_id", garmentID),
				slog.String("error", delErr.Error()),
			)
		}
		if delErr := h.blobStore.Delete(ctx, originalURL); delErr != nil {
			h.logger.Warn("Failed to clean up original image",
				slog.String("garment_id", garmentID),
				slog.String("error", delErr.Error()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Processing queue unavailable, try again later",
		})
		return
	}

	h.logger.Info("Garment accepted for processing",
		slog.String("garment_id", garmentID),
		slog.String("user_id", userID),
		slog.Bool("priority", priority),
	)

	c.JSON(http.StatusAccepted, dto.UploadGarmentResponse{
		GarmentID:        garmentID,
		ProcessingStatus: garment.ProcessingStatus,
		OriginalImageURL: originalURL,
		Message:          "Garment accepted for processing",
	})
}

// GetGarment handles GET /api/v1/garments/:garment_id
// Returns the garment's current processing status and, once completed, the
// classification attributes and processed image reference.
func (h *GarmentHandler) GetGarment(c *gin.Context) {
	garmentID := c.Param("garment_id")

	if _, err := uuid.Parse(garmentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "garment_id must be a valid UUID",
		})
		return
	}

	garment, err := h.storage.GetGarmentByID(c.Request.Context(), garmentID)
	if err != nil {
		if errors.Is(err, domain.ErrGarmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Garment not found",
			})
			return
		}
		h.logger.Error("Failed to get garment", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get garment",
		})
		return
	}

	c.JSON(http.StatusOK, toGarmentDTO(garment))
}

// ListGarments handles GET /api/v1/garments
// Lists a user's garments with optional status/category filters and cursor
// pagination.
func (h *GarmentHandler) ListGarments(c *gin.Context) {
	var req dto.ListGarmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeGarmentCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.GarmentFilter{
		UserID:   req.UserID,
		Status:   req.Status,
		Category: req.Category,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	garments, err := h.storage.ListGarments(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list garments", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list garments",
		})
		return
	}

	hasMore := len(garments) > req.PageSize
	if hasMore {
		garments = garments[:req.PageSize]
	}

	response := make([]dto.GarmentDTO, len(garments))
	for i := range garments {
		response[i] = toGarmentDTO(&garments[i])
	}

	var nextCursor string
	if hasMore {
		last := garments[len(garments)-1]
		nextCursor = EncodeGarmentCursor(&storage.GarmentCursor{
			CreatedAt: last.CreatedAt,
			GarmentID: last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListGarmentsResponse{
		Garments:   response,
		NextCursor: nextCursor,
	})
}

// DeleteGarment handles DELETE /api/v1/garments/:garment_id
// Removes the garment record and its stored images. Only the API deletes
// records; the worker never does.
func (h *GarmentHandler) DeleteGarment(c *gin.Context) {
	garmentID := c.Param("garment_id")

	if _, err := uuid.Parse(garmentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "garment_id must be a valid UUID",
		})
		return
	}

	ctx := c.Request.Context()

	garment, err := h.storage.GetGarmentByID(ctx, garmentID)
	if err != nil {
		if errors.Is(err, domain.ErrGarmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Garment not found",
			})
			return
		}
		h.logger.Error("Failed to get garment", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete garment",
		})
		return
	}

	if err := h.storage.DeleteGarment(ctx, garmentID); err != nil {
		h.logger.Error("Failed to delete garment", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete garment",
		})
		return
	}

	// Image cleanup is best effort; the record is already gone.
	for _, ref := range []string{garment.OriginalImageURL, garment.ProcessedImageURL} {
		if ref == "" {
			continue
		}
		if err := h.blobStore.Delete(ctx, ref); err != nil {
			h.logger.Warn("Failed to delete stored image",
				slog.String("garment_id", garmentID),
				slog.String("ref", ref),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Status(http.StatusNoContent)
}

// QueueStats handles GET /api/v1/queue/stats
func (h *GarmentHandler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read queue stats", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Queue unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ClearQueue handles POST /api/v1/queue/:queue_name/clear
// Maintenance only: empties the named queue and reports how many jobs were
// removed. Only the two configured queue names are accepted.
func (h *GarmentHandler) ClearQueue(c *gin.Context) {
	name := c.Param("queue_name")
	if name != h.queue.QueueName() && name != h.queue.RetryQueueName() {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown queue",
		})
		return
	}

	removed, err := h.queue.Clear(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to clear queue", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Queue unavailable",
		})
		return
	}

	h.logger.Info("Queue cleared via API",
		slog.String("queue", name),
		slog.Int64("jobs_removed", removed),
	)

	c.JSON(http.StatusOK, gin.H{
		"queue":        name,
		"jobs_removed": removed,
	})
}

func toGarmentDTO(g *model.Garment) dto.GarmentDTO {
	return dto.GarmentDTO{
		GarmentID:         g.ID,
		UserID:            g.UserID,
		FileName:          g.FileName,
		OriginalImageURL:  g.OriginalImageURL,
		ProcessedImageURL: g.ProcessedImageURL,
		Category:          g.Category,
		Color:             g.Color,
		Style:             g.Style,
		Season:            g.Season,
		Material:          g.Material,
		Occasion:          g.Occasion,
		Confidence:        g.Confidence,
		ProcessingStatus:  g.ProcessingStatus,
		ErrorMessage:      g.ErrorMessage,
		CreatedAt:         g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         g.UpdatedAt.Format(time.RFC3339),
	}
}
