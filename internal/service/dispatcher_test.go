package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailroom/internal/mailer"
	"mailroom/internal/model"
)

type stubCredentialSource struct {
	accounts map[string]*model.SenderAccount
	calls    int
}

func (s *stubCredentialSource) FindByRole(_ context.Context, role string) (*model.SenderAccount, error) {
	s.calls++
	a, ok := s.accounts[role]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

type memoryCredentialCache struct {
	mu       sync.Mutex
	accounts map[string]*model.SenderAccount
}

func newMemoryCredentialCache() *memoryCredentialCache {
	return &memoryCredentialCache{accounts: map[string]*model.SenderAccount{}}
}

func (c *memoryCredentialCache) Get(_ context.Context, role string) (*model.SenderAccount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[role]
	return a, ok
}

func (c *memoryCredentialCache) Set(_ context.Context, a *model.SenderAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.Role] = a
}

// stubBinder maps member codes to addresses and passes raw addresses
// through, mirroring the literal-body path.
type stubBinder struct {
	addresses map[string]string
}

func (b *stubBinder) Bind(_ context.Context, identifier, _, rawBody string, _ map[string]string) (string, string, error) {
	if strings.Contains(identifier, "@") {
		return identifier, rawBody, nil
	}
	addr, ok := b.addresses[identifier]
	if !ok {
		return "", "", errors.New("member " + identifier + " not found")
	}
	return addr, rawBody, nil
}

type countingDeliverer struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (d *countingDeliverer) Send(_ context.Context, _ mailer.Credentials, to, _, _, _ string, _ []string) error {
	d.mu.Lock()
	d.sent = append(d.sent, to)
	d.mu.Unlock()
	if err, ok := d.failFor[to]; ok {
		return err
	}
	return nil
}

func (d *countingDeliverer) sentTo() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func newDispatchFixture(delivery *countingDeliverer) (*DispatchService, *stubCredentialSource) {
	dir := newFakeGroupDirectory()
	dir.addGroup("g1", "grp1",
		model.GroupMember{USN: "u001", Email: "u001@students.example.com"},
		model.GroupMember{USN: "u002", Email: "u002@students.example.com"},
	)
	dir.byUSN["u007"] = model.GroupMember{GroupID: "g1", USN: "u007", Email: "u007@students.example.com"}

	binder := &stubBinder{addresses: map[string]string{
		"u001": "u001@students.example.com",
		"u002": "u002@students.example.com",
		"u007": "u007@students.example.com",
	}}

	senders := &stubCredentialSource{accounts: map[string]*model.SenderAccount{
		"placement": {Role: "placement", Email: "placement@example.com", Token: "t"},
	}}

	logger := zap.NewNop()
	svc := NewDispatchService(
		senders,
		nil,
		NewRecipientResolver(dir, logger),
		binder,
		delivery,
		logger,
	)
	return svc, senders
}

func TestSendBulkMixedIdentifiers(t *testing.T) {
	delivery := &countingDeliverer{}
	svc, _ := newDispatchFixture(delivery)

	failed, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "placement",
		To:       []string{"alice@x.com", "grp1*", "u007"},
		Subject:  "hi",
		Body:     "hello",
	})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.ElementsMatch(t, []string{
		"alice@x.com",
		"u001@students.example.com",
		"u002@students.example.com",
		"u007@students.example.com",
	}, delivery.sentTo())
}

func TestSendBulkNoRecipients(t *testing.T) {
	delivery := &countingDeliverer{}
	svc, _ := newDispatchFixture(delivery)

	_, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "placement",
		To:       []string{"nogroup*"},
		Subject:  "hi",
		Body:     "hello",
	})
	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Empty(t, delivery.sentTo(), "batch-fatal errors must not reach the transport")
}

func TestSendBulkUnknownRole(t *testing.T) {
	delivery := &countingDeliverer{}
	svc, _ := newDispatchFixture(delivery)

	_, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "ghost",
		To:       []string{"alice@x.com"},
		Body:     "hello",
	})
	assert.ErrorIs(t, err, ErrNoSenderCredential)
	assert.Empty(t, delivery.sentTo())
}

func TestSendBulkAggregatesFailures(t *testing.T) {
	delivery := &countingDeliverer{failFor: map[string]error{
		"u001@students.example.com": errors.New("mailbox unavailable"),
		"u002@students.example.com": errors.New("connection reset"),
	}}
	svc, _ := newDispatchFixture(delivery)

	failed, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "placement",
		To:       []string{"grp1*", "alice@x.com"},
		Body:     "hello",
	})
	require.NoError(t, err, "per-target failures are not batch-fatal")
	assert.ElementsMatch(t, []string{
		"u001@students.example.com",
		"u002@students.example.com",
	}, failed)
	assert.Len(t, delivery.sentTo(), 3)
}

func TestSendBulkInvalidAddressSkipsSend(t *testing.T) {
	delivery := &countingDeliverer{}
	svc, _ := newDispatchFixture(delivery)

	// The binder passes raw addresses through, so a malformed one only
	// gets caught by the post-bind validation.
	failed, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "placement",
		To:       []string{"not-an-address@", "alice@x.com"},
		Body:     "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"not-an-address@"}, failed)
	assert.Equal(t, []string{"alice@x.com"}, delivery.sentTo())
}

func TestSendBulkCachesCredentials(t *testing.T) {
	delivery := &countingDeliverer{}
	svc, senders := newDispatchFixture(delivery)
	cache := newMemoryCredentialCache()
	svc.cache = cache

	job := &BulkJob{FromRole: "placement", To: []string{"alice@x.com"}, Body: "hello"}

	_, err := svc.SendBulk(context.Background(), job)
	require.NoError(t, err)
	_, err = svc.SendBulk(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, senders.calls, "second batch must hit the cache")
}

func TestSendBulkDefaultsToHTML(t *testing.T) {
	var gotContentType string
	delivery := &captureDeliverer{onSend: func(contentType string) {
		gotContentType = contentType
	}}

	dir := newFakeGroupDirectory()
	senders := &stubCredentialSource{accounts: map[string]*model.SenderAccount{
		"placement": {Role: "placement", Email: "placement@example.com", Token: "t"},
	}}
	logger := zap.NewNop()
	svc := NewDispatchService(senders, nil, NewRecipientResolver(dir, logger), &stubBinder{}, delivery, logger)

	_, err := svc.SendBulk(context.Background(), &BulkJob{
		FromRole: "placement",
		To:       []string{"alice@x.com"},
		Body:     "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/html", gotContentType)
}

type captureDeliverer struct {
	onSend func(contentType string)
}

func (d *captureDeliverer) Send(_ context.Context, _ mailer.Credentials, _, _, _, contentType string, _ []string) error {
	d.onSend(contentType)
	return nil
}
