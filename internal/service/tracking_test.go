package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mailroom/internal/model"
)

type fakeTrackingStore struct {
	statuses map[string]*model.DeliveryStatus

	incremented []int
	opened      []int
}

func newFakeTrackingStore(statuses ...*model.DeliveryStatus) *fakeTrackingStore {
	store := &fakeTrackingStore{statuses: map[string]*model.DeliveryStatus{}}
	for _, s := range statuses {
		store.statuses[s.TrackingID] = s
	}
	return store
}

func (f *fakeTrackingStore) FindStatusByTracking(_ context.Context, trackingID string) (*model.DeliveryStatus, error) {
	s, ok := f.statuses[trackingID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeTrackingStore) IncrementViews(_ context.Context, id int) error {
	f.incremented = append(f.incremented, id)
	for _, s := range f.statuses {
		if s.ID == id {
			s.ViewCount++
		}
	}
	return nil
}

func (f *fakeTrackingStore) MarkOpened(_ context.Context, id int, at time.Time) error {
	f.opened = append(f.opened, id)
	for _, s := range f.statuses {
		if s.ID == id && !s.Opened {
			s.Opened = true
			s.OpenedAt = &at
		}
	}
	return nil
}

// Chrome and Safari strings contain "AppleWebKit" and would match the
// Apple prefetch marker, so Firefox stands in for a real client here.
const realClientUA = "Mozilla/5.0 (X11; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0"

func TestRecordOpenFirstRealFetch(t *testing.T) {
	status := &model.DeliveryStatus{ID: 1, TrackingID: "abc", Sent: true}
	store := newFakeTrackingStore(status)
	svc := NewTrackingService(store, zap.NewNop())

	svc.RecordOpen(context.Background(), "abc", realClientUA)

	assert.True(t, status.Opened)
	assert.NotNil(t, status.OpenedAt)
	assert.Equal(t, 1, status.ViewCount)
}

func TestRecordOpenProxyFetchIsNotAnOpen(t *testing.T) {
	tests := []struct {
		name string
		ua   string
	}{
		{name: "google image proxy", ua: "Mozilla/5.0 (via ggpht.com GoogleImageProxy)"},
		{name: "apple mail privacy", ua: "Mozilla/5.0 AppleWebKit (KHTML, like Gecko)"},
		{name: "outlook prefetch", ua: "Outlook-iOS/709.123"},
		{name: "generic bot", ua: "SomeScannerBot/1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &model.DeliveryStatus{ID: 1, TrackingID: "abc", Sent: true}
			store := newFakeTrackingStore(status)
			svc := NewTrackingService(store, zap.NewNop())

			svc.RecordOpen(context.Background(), "abc", tt.ua)

			assert.False(t, status.Opened, "proxy fetch must not confirm an open")
			assert.Nil(t, status.OpenedAt)
			assert.Equal(t, 1, status.ViewCount, "proxy fetch still counts as a view")
		})
	}
}

func TestRecordOpenRealFetchAfterProxyFetch(t *testing.T) {
	status := &model.DeliveryStatus{ID: 1, TrackingID: "abc", Sent: true}
	store := newFakeTrackingStore(status)
	svc := NewTrackingService(store, zap.NewNop())

	svc.RecordOpen(context.Background(), "abc", "GoogleImageProxy")
	svc.RecordOpen(context.Background(), "abc", realClientUA)

	assert.True(t, status.Opened)
	assert.Equal(t, 2, status.ViewCount)
}

func TestRecordOpenIsIdempotent(t *testing.T) {
	status := &model.DeliveryStatus{ID: 1, TrackingID: "abc", Sent: true}
	store := newFakeTrackingStore(status)
	svc := NewTrackingService(store, zap.NewNop())

	svc.RecordOpen(context.Background(), "abc", realClientUA)
	firstOpenedAt := *status.OpenedAt

	svc.RecordOpen(context.Background(), "abc", realClientUA)
	svc.RecordOpen(context.Background(), "abc", realClientUA)

	assert.Equal(t, firstOpenedAt, *status.OpenedAt, "opened state is terminal")
	assert.Equal(t, 3, status.ViewCount)
	assert.Len(t, store.opened, 1, "MarkOpened must run at most once")
}

func TestRecordOpenUnknownTokenMutatesNothing(t *testing.T) {
	store := newFakeTrackingStore()
	svc := NewTrackingService(store, zap.NewNop())

	svc.RecordOpen(context.Background(), "no-such-token", realClientUA)

	assert.Empty(t, store.incremented)
	assert.Empty(t, store.opened)
}

func TestIsProxyUserAgent(t *testing.T) {
	assert.True(t, isProxyUserAgent("mozilla/5.0 (via ggpht.com googleimageproxy)"))
	assert.True(t, isProxyUserAgent("YahooMailProxy"))
	assert.False(t, isProxyUserAgent(""))
	assert.False(t, isProxyUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Firefox/130.0"))
}
