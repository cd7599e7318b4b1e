package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailroom/internal/model"
	"mailroom/pkg/metrics"
)

// TrackingStore is the mutable view of email_status the open-tracking
// handler works with.
type TrackingStore interface {
	FindStatusByTracking(ctx context.Context, trackingID string) (*model.DeliveryStatus, error)
	IncrementViews(ctx context.Context, id int) error
	MarkOpened(ctx context.Context, id int, at time.Time) error
}

// Mail clients and security gateways that pre-fetch images. A first
// fetch from one of these is noise, not a genuine open.
var proxyUserAgents = []string{
	"GoogleImageProxy", "Google-Apps-Script", "Google", "Apple", "Outlook",
	"Thunderbird", "iCloud", "Microsoft", "Yahoo", "Yandex", "bot",
}

func isProxyUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, proxy := range proxyUserAgents {
		if strings.Contains(ua, strings.ToLower(proxy)) {
			return true
		}
	}
	return false
}

// TrackingService applies the open-confirmation policy: the first
// pixel fetch marks a message opened unless the user agent matches a
// known prefetch proxy. Once opened, the state is terminal; later
// fetches only bump the view counter.
type TrackingService struct {
	store  TrackingStore
	logger *zap.Logger
}

func NewTrackingService(store TrackingStore, logger *zap.Logger) *TrackingService {
	return &TrackingService{store: store, logger: logger}
}

// RecordOpen processes one pixel fetch. It never returns an error to
// the HTTP layer: the response is the same pixel regardless of what
// happens here.
func (s *TrackingService) RecordOpen(ctx context.Context, trackingID, userAgent string) {
	status, err := s.store.FindStatusByTracking(ctx, trackingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("No email record found for tracking ID",
				zap.String("tracking_id", trackingID),
			)
		} else {
			s.logger.Error("Tracking lookup failed",
				zap.String("tracking_id", trackingID),
				zap.Error(err),
			)
		}
		metrics.RecordPixelFetch("unknown")
		return
	}

	if err := s.store.IncrementViews(ctx, status.ID); err != nil {
		s.logger.Error("Failed to increment view counter",
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
	}

	if status.Opened {
		s.logger.Info("Repeat open detected",
			zap.String("tracking_id", trackingID),
		)
		metrics.RecordPixelFetch("repeat")
		return
	}

	if isProxyUserAgent(userAgent) {
		s.logger.Info("Pixel fetched by prefetch proxy, not marked as opened",
			zap.String("tracking_id", trackingID),
			zap.String("user_agent", userAgent),
		)
		metrics.RecordPixelFetch("proxy")
		return
	}

	if err := s.store.MarkOpened(ctx, status.ID, time.Now().UTC()); err != nil {
		s.logger.Error("Failed to update open state",
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("First real open detected",
		zap.String("tracking_id", trackingID),
		zap.String("from", status.FromEmail),
		zap.String("to", status.ToEmail),
	)
	metrics.RecordPixelFetch("opened")
}
