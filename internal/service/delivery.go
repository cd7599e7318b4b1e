package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailroom/internal/mailer"
	"mailroom/internal/model"
	"mailroom/pkg/metrics"
)

// DeliveryStore persists send outcomes. A DeliveryLog and its
// DeliveryStatus form one logical unit; the log insert yields the id
// the status row needs.
type DeliveryStore interface {
	CreateLog(ctx context.Context, l *model.DeliveryLog) (int, error)
	CreateStatus(ctx context.Context, s *model.DeliveryStatus) error
}

// SenderDirectory looks up relay accounts; the worker needs it for
// admin failure reports.
type SenderDirectory interface {
	FindByRole(ctx context.Context, role string) (*model.SenderAccount, error)
	FindAdmin(ctx context.Context) (*model.SenderAccount, error)
}

// DeliveryService sends one rendered message to one address with
// bounded retry, records the outcome, and reports exhausted failures
// to the admin mailbox.
type DeliveryService struct {
	transport       mailer.Transport
	store           DeliveryStore
	senders         SenderDirectory
	logger          *zap.Logger
	trackingBaseURL string
	maxAttempts     int
	backoff         time.Duration
}

func NewDeliveryService(
	transport mailer.Transport,
	store DeliveryStore,
	senders SenderDirectory,
	logger *zap.Logger,
	trackingBaseURL string,
) *DeliveryService {
	return &DeliveryService{
		transport:       transport,
		store:           store,
		senders:         senders,
		logger:          logger,
		trackingBaseURL: trackingBaseURL,
		maxAttempts:     3,
		backoff:         time.Second,
	}
}

func (s *DeliveryService) WithMaxAttempts(n int) *DeliveryService {
	s.maxAttempts = n
	return s
}

func (s *DeliveryService) WithBackoff(d time.Duration) *DeliveryService {
	s.backoff = d
	return s
}

// Send delivers one message. Failures that exhaust the retry budget
// trigger a best-effort admin notification.
func (s *DeliveryService) Send(ctx context.Context, creds mailer.Credentials, to, subject, body, contentType string, attachments []string) error {
	return s.deliver(ctx, creds, to, subject, body, contentType, attachments, true)
}

func (s *DeliveryService) deliver(ctx context.Context, creds mailer.Credentials, to, subject, body, contentType string, attachments []string, notifyOnFailure bool) error {
	if body == "" {
		s.logger.Error("Cannot send email, no body provided", zap.String("to", to))
		return fmt.Errorf("%w for %s", ErrEmptyBody, to)
	}

	trackingID := newTrackingID()

	// Only HTML bodies carry the tracking pixel; plain text goes out
	// unmodified and is never open-tracked.
	emailBody := body
	if contentType == "text/html" {
		emailBody = body + trackingPixel(s.trackingBaseURL, trackingID)
	}

	msg := &mailer.Message{
		To:          to,
		Subject:     subject,
		Body:        emailBody,
		ContentType: contentType,
		Attachments: attachments,
	}

	var lastErr *mailer.SendError
	attempts := 0
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		attempts = attempt
		err := s.transport.Send(ctx, creds, msg)
		if err == nil {
			s.recordSuccess(ctx, creds.Email, to, subject, emailBody, trackingID)
			s.logger.Info("Email sent",
				zap.String("to", to),
				zap.Int("attempt", attempt),
				zap.String("tracking_id", trackingID),
			)
			metrics.RecordDelivery(model.DeliveryStatusSent, attempt)
			return nil
		}

		lastErr = mailer.Classify(err)
		if lastErr.Kind.Terminal() {
			s.logger.Error("Terminal transport error, not retrying",
				zap.String("to", to),
				zap.String("kind", lastErr.Kind.String()),
				zap.Error(lastErr.Err),
			)
			break
		}

		s.logger.Warn("Send attempt failed",
			zap.String("to", to),
			zap.Int("attempt", attempt),
			zap.Error(lastErr.Err),
		)
		if attempt < s.maxAttempts {
			time.Sleep(s.backoff)
		}
	}

	s.recordFailure(ctx, creds.Email, to, subject, emailBody, lastErr)
	metrics.RecordDelivery(model.DeliveryStatusFailed, attempts)

	if notifyOnFailure {
		s.notifyAdmin(ctx, to, subject, lastErr)
	}
	return fmt.Errorf("send to %s failed after %d attempt(s): %w", to, attempts, lastErr)
}

// recordSuccess writes the log row and its tracking status as one
// logical unit. Delivery success is defined by the transport ack, so
// persistence errors are logged and swallowed.
func (s *DeliveryService) recordSuccess(ctx context.Context, from, to, subject, body, trackingID string) {
	logID, err := s.store.CreateLog(ctx, &model.DeliveryLog{
		FromEmail: from,
		ToEmail:   to,
		Subject:   subject,
		Body:      body,
		Status:    model.DeliveryStatusSent,
	})
	if err != nil {
		s.logger.Error("Failed to persist delivery record", zap.Error(err))
		return
	}

	err = s.store.CreateStatus(ctx, &model.DeliveryStatus{
		EmailLogID: logID,
		FromEmail:  from,
		ToEmail:    to,
		Sent:       true,
		TrackingID: trackingID,
	})
	if err != nil {
		// The log row is not rolled back; flag the inconsistency.
		s.logger.Error("Delivery record has no tracking status",
			zap.Int("log_id", logID),
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
	}
}

func (s *DeliveryService) recordFailure(ctx context.Context, from, to, subject, body string, sendErr *mailer.SendError) {
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}
	_, err := s.store.CreateLog(ctx, &model.DeliveryLog{
		FromEmail:    from,
		ToEmail:      to,
		Subject:      subject,
		Body:         body,
		Status:       model.DeliveryStatusFailed,
		ErrorMessage: errMsg,
	})
	if err != nil {
		s.logger.Error("Failed to persist failure record", zap.Error(err))
	}
	s.logger.Error("Email failed",
		zap.String("to", to),
		zap.String("error", errMsg),
	)
}

// notifyAdmin sends a plain-text failure report via the admin role.
// Best effort: every error here is logged and swallowed, and the
// notification send never notifies recursively.
func (s *DeliveryService) notifyAdmin(ctx context.Context, failedTo, originalSubject string, sendErr *mailer.SendError) {
	admin, err := s.senders.FindAdmin(ctx)
	if err != nil {
		s.logger.Error("No admin account configured for failure report", zap.Error(err))
		return
	}

	account, err := s.senders.FindByRole(ctx, "admin")
	if err != nil {
		s.logger.Error("No admin sender credentials for failure report", zap.Error(err))
		return
	}

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}

	subject := fmt.Sprintf("[Mailer Alert] Failed to Send Email to %s", failedTo)
	body := fmt.Sprintf(`The system failed to send an email after multiple attempts.

Recipient: %s
Original Subject: %s
Error: %s

Please check the logs for more details.
`, failedTo, originalSubject, errMsg)

	creds := mailer.Credentials{Email: account.Email, Token: account.Token}
	if err := s.deliver(ctx, creds, admin.Email, subject, body, "text/plain", nil, false); err != nil {
		s.logger.Error("Failed to notify admin", zap.Error(err))
		return
	}
	s.logger.Info("Admin notified about delivery failure",
		zap.String("failed_recipient", failedTo),
	)
}

func newTrackingID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func trackingPixel(baseURL, trackingID string) string {
	return fmt.Sprintf(`<img src="%s/track/%s.png" width="1" height="1" style="display:none;" alt=""/>`, baseURL, trackingID)
}
