package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"mailroom/internal/model"
)

// DeliveryReader serves the operator reporting endpoints.
type DeliveryReader interface {
	ListLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error)
	FindStatusByTracking(ctx context.Context, trackingID string) (*model.DeliveryStatus, error)
}

type ReportHandler struct {
	deliveries DeliveryReader
}

func NewReportHandler(deliveries DeliveryReader) *ReportHandler {
	return &ReportHandler{deliveries: deliveries}
}

// ListLogs handles GET /api/logs.
func (h *ReportHandler) ListLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	logs, err := h.deliveries.ListLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch delivery logs"})
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"log_id":        l.LogID,
			"from_email":    l.FromEmail,
			"to_email":      l.ToEmail,
			"subject":       l.Subject,
			"sent_at":       l.SentAt,
			"status":        l.Status,
			"error_message": l.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// GetStatus handles GET /api/status/:tracking_id.
func (h *ReportHandler) GetStatus(c *gin.Context) {
	trackingID := c.Param("tracking_id")

	status, err := h.deliveries.FindStatusByTracking(c.Request.Context(), trackingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown tracking id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tracking_id": status.TrackingID,
		"from_email":  status.FromEmail,
		"to_email":    status.ToEmail,
		"sent":        status.Sent,
		"opened":      status.Opened,
		"opened_at":   status.OpenedAt,
		"view_count":  status.ViewCount,
	})
}
