package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailroom/internal/mailer"
	"mailroom/internal/model"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []mailer.Message
	respond func(to string, attempt int) error
}

func (f *fakeTransport) Send(_ context.Context, _ mailer.Credentials, msg *mailer.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, *msg)
	attempt := 0
	for _, m := range f.sent {
		if m.To == msg.To {
			attempt++
		}
	}
	f.mu.Unlock()

	if f.respond == nil {
		return nil
	}
	return f.respond(msg.To, attempt)
}

func (f *fakeTransport) attemptsTo(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.To == to {
			n++
		}
	}
	return n
}

type fakeDeliveryStore struct {
	mu        sync.Mutex
	logs      []model.DeliveryLog
	statuses  []model.DeliveryStatus
	logErr    error
	statusErr error
}

func (f *fakeDeliveryStore) CreateLog(_ context.Context, l *model.DeliveryLog) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return 0, f.logErr
	}
	f.logs = append(f.logs, *l)
	return len(f.logs), nil
}

func (f *fakeDeliveryStore) CreateStatus(_ context.Context, s *model.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, *s)
	return nil
}

func (f *fakeDeliveryStore) logsByStatus(status string) []model.DeliveryLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeliveryLog
	for _, l := range f.logs {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

type fakeSenderDirectory struct {
	admin *model.SenderAccount
}

func (f *fakeSenderDirectory) FindByRole(_ context.Context, role string) (*model.SenderAccount, error) {
	if f.admin != nil && role == "admin" {
		return f.admin, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSenderDirectory) FindAdmin(_ context.Context) (*model.SenderAccount, error) {
	if f.admin == nil {
		return nil, pgx.ErrNoRows
	}
	return f.admin, nil
}

var testCreds = mailer.Credentials{Email: "noreply@example.com", Token: "secret"}

func newTestDelivery(transport *fakeTransport, store *fakeDeliveryStore, senders *fakeSenderDirectory) *DeliveryService {
	return NewDeliveryService(transport, store, senders, zap.NewNop(), "http://track.example.com").
		WithBackoff(time.Millisecond)
}

func TestDeliverySuccess(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeDeliveryStore{}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "<p>hello</p>", "text/html", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, transport.attemptsTo("alice@x.com"))
	require.Len(t, store.logs, 1)
	require.Len(t, store.statuses, 1)

	log := store.logs[0]
	status := store.statuses[0]
	assert.Equal(t, model.DeliveryStatusSent, log.Status)
	assert.True(t, status.Sent)
	assert.False(t, status.Opened)
	assert.NotEmpty(t, status.TrackingID)
	assert.Contains(t, log.Body, "/track/"+status.TrackingID+".png", "sent body must embed the tracking pixel")
}

func TestDeliveryPlainTextHasNoPixel(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeDeliveryStore{}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "hello", "text/plain", nil)
	require.NoError(t, err)

	require.Len(t, transport.sent, 1)
	assert.NotContains(t, transport.sent[0].Body, "<img")
}

func TestDeliveryTerminalErrorDoesNotRetry(t *testing.T) {
	tests := []struct {
		name string
		kind mailer.ErrorKind
	}{
		{name: "auth failure", kind: mailer.KindAuth},
		{name: "recipient rejected", kind: mailer.KindRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{
				respond: func(to string, _ int) error {
					if to == "alice@x.com" {
						return &mailer.SendError{Kind: tt.kind, Err: errors.New("rejected")}
					}
					return nil
				},
			}
			store := &fakeDeliveryStore{}
			admin := &model.SenderAccount{Role: "admin", Email: "admin@example.com", Token: "t", IsAdmin: true}
			svc := newTestDelivery(transport, store, &fakeSenderDirectory{admin: admin})

			err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "hello", "text/plain", nil)
			require.Error(t, err)

			assert.Equal(t, 1, transport.attemptsTo("alice@x.com"), "terminal errors must not retry")
			require.Len(t, store.logsByStatus(model.DeliveryStatusFailed), 1)
		})
	}
}

func TestDeliveryTransientErrorRetriesThreeTimes(t *testing.T) {
	transport := &fakeTransport{
		respond: func(to string, _ int) error {
			if to == "alice@x.com" {
				return &mailer.SendError{Kind: mailer.KindTransient, Err: errors.New("connection reset")}
			}
			return nil
		},
	}
	store := &fakeDeliveryStore{}
	admin := &model.SenderAccount{Role: "admin", Email: "admin@example.com", Token: "t", IsAdmin: true}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{admin: admin})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "original subject", "hello", "text/plain", nil)
	require.Error(t, err)

	assert.Equal(t, 3, transport.attemptsTo("alice@x.com"))
	assert.Equal(t, 1, transport.attemptsTo("admin@example.com"), "exactly one admin notification attempt")

	failed := store.logsByStatus(model.DeliveryStatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ErrorMessage, "connection reset")

	// The admin report itself is a send, so it gets its own log row.
	sent := store.logsByStatus(model.DeliveryStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "admin@example.com", sent[0].ToEmail)
	assert.Contains(t, sent[0].Body, "alice@x.com")
	assert.Contains(t, sent[0].Body, "original subject")
}

func TestDeliveryTransientThenSuccess(t *testing.T) {
	transport := &fakeTransport{
		respond: func(_ string, attempt int) error {
			if attempt < 3 {
				return &mailer.SendError{Kind: mailer.KindTransient, Err: errors.New("disconnected")}
			}
			return nil
		},
	}
	store := &fakeDeliveryStore{}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "hello", "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, transport.attemptsTo("alice@x.com"))
	require.Len(t, store.logsByStatus(model.DeliveryStatusSent), 1)
}

func TestDeliveryAdminLookupFailureDoesNotMaskOutcome(t *testing.T) {
	transport := &fakeTransport{
		respond: func(string, int) error {
			return &mailer.SendError{Kind: mailer.KindAuth, Err: errors.New("bad credentials")}
		},
	}
	store := &fakeDeliveryStore{}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{}) // no admin configured

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "hello", "text/plain", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestDeliveryPersistenceFailureDoesNotFailSend(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeDeliveryStore{logErr: errors.New("db down")}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "hello", "text/plain", nil)
	assert.NoError(t, err, "delivery success is defined by transport acknowledgment")
}

func TestDeliveryEmptyBodyFails(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeDeliveryStore{}
	svc := newTestDelivery(transport, store, &fakeSenderDirectory{})

	err := svc.Send(context.Background(), testCreds, "alice@x.com", "hi", "", "text/plain", nil)
	assert.ErrorIs(t, err, ErrEmptyBody)
	assert.Empty(t, transport.sent)
}

func TestTrackingPixelFormat(t *testing.T) {
	pixel := trackingPixel("http://track.example.com", "abc123")
	assert.True(t, strings.HasPrefix(pixel, `<img src="http://track.example.com/track/abc123.png"`))
	assert.Contains(t, pixel, `width="1" height="1"`)
}
