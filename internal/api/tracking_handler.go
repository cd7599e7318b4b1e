package api

import (
	"context"
	_ "embed"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed pixel.png
var pixelPNG []byte

// OpenTracker records one pixel fetch.
type OpenTracker interface {
	RecordOpen(ctx context.Context, trackingID, userAgent string)
}

type TrackingHandler struct {
	tracker OpenTracker
	logger  *zap.Logger
}

func NewTrackingHandler(tracker OpenTracker, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{tracker: tracker, logger: logger}
}

// TrackOpen handles GET /track/:pixel. The response is always the same
// 1x1 image with caching disabled; unknown tokens get the pixel too so
// tracking stays invisible to the mail client.
func (h *TrackingHandler) TrackOpen(c *gin.Context) {
	trackingID := strings.TrimSuffix(c.Param("pixel"), ".png")
	userAgent := c.GetHeader("User-Agent")

	h.logger.Info("Tracking pixel accessed",
		zap.String("tracking_id", trackingID),
		zap.String("client_ip", c.ClientIP()),
		zap.String("user_agent", userAgent),
	)

	h.tracker.RecordOpen(c.Request.Context(), trackingID, userAgent)

	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/png", pixelPNG)
}
