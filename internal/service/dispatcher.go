package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailroom/internal/mailer"
	"mailroom/internal/model"
)

// BulkJob describes one batch handed in by the API or the scheduler.
type BulkJob struct {
	FromRole     string
	To           []string
	Subject      string
	Body         string
	ContentType  string
	TemplateName string
	Variables    map[string]string
	Attachments  []string
}

// Resolver expands recipient identifiers.
type Resolver interface {
	Resolve(ctx context.Context, identifiers []string) []string
}

// Binder produces the final (address, body) for one target.
type Binder interface {
	Bind(ctx context.Context, identifier, templateName, rawBody string, baseVars map[string]string) (addr, body string, err error)
}

// Deliverer is the per-recipient send pipeline.
type Deliverer interface {
	Send(ctx context.Context, creds mailer.Credentials, to, subject, body, contentType string, attachments []string) error
}

// CredentialSource looks up relay credentials by role.
type CredentialSource interface {
	FindByRole(ctx context.Context, role string) (*model.SenderAccount, error)
}

// CredentialCache is an optional read-through cache in front of the
// CredentialSource.
type CredentialCache interface {
	Get(ctx context.Context, role string) (*model.SenderAccount, bool)
	Set(ctx context.Context, a *model.SenderAccount)
}

// DispatchService fans a resolved recipient set out to the delivery
// pipeline, one goroutine per target, and aggregates failures.
type DispatchService struct {
	senders  CredentialSource
	cache    CredentialCache
	resolver Resolver
	binder   Binder
	delivery Deliverer
	logger   *zap.Logger
}

func NewDispatchService(
	senders CredentialSource,
	cache CredentialCache,
	resolver Resolver,
	binder Binder,
	delivery Deliverer,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		senders:  senders,
		cache:    cache,
		resolver: resolver,
		binder:   binder,
		delivery: delivery,
		logger:   logger,
	}
}

// SendBulk runs one batch. A non-nil error is batch-fatal
// (ErrNoSenderCredential, ErrNoRecipients); otherwise the returned
// slice names the targets that failed binding, validation, or sending.
// The batch succeeded fully iff err == nil and the slice is empty.
func (s *DispatchService) SendBulk(ctx context.Context, job *BulkJob) ([]string, error) {
	start := time.Now()
	s.logger.Info("Starting bulk email job",
		zap.String("role", job.FromRole),
		zap.Int("identifiers", len(job.To)),
	)

	account, err := s.lookupSender(ctx, job.FromRole)
	if err != nil {
		s.logger.Error("Could not find credentials for role",
			zap.String("role", job.FromRole),
		)
		return nil, err
	}
	creds := mailer.Credentials{Email: account.Email, Token: account.Token}

	recipients := s.resolver.Resolve(ctx, job.To)
	if len(recipients) == 0 {
		s.logger.Error("No valid recipients resolved from input list")
		return nil, ErrNoRecipients
	}

	contentType := job.ContentType
	if contentType == "" {
		contentType = "text/html"
	}
	attachments := s.validAttachments(job.Attachments)

	// Failed targets accumulate concurrently; the mutex is the only
	// state shared between workers.
	var mu sync.Mutex
	var failed []string
	fail := func(identifier string) {
		mu.Lock()
		failed = append(failed, identifier)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for _, identifier := range recipients {
		wg.Add(1)
		go func(identifier string) {
			defer wg.Done()

			addr, body, err := s.binder.Bind(ctx, identifier, job.TemplateName, job.Body, job.Variables)
			if err != nil {
				s.logger.Warn("Binding failed for target",
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				fail(identifier)
				return
			}

			if !IsValidEmail(addr) {
				s.logger.Warn("Invalid email format skipped", zap.String("email", addr))
				fail(addr)
				return
			}

			if err := s.delivery.Send(ctx, creds, addr, job.Subject, body, contentType, attachments); err != nil {
				fail(addr)
			}
		}(identifier)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if len(failed) > 0 {
		s.logger.Warn("Bulk email job completed with failures",
			zap.Duration("elapsed", elapsed),
			zap.Int("failed", len(failed)),
			zap.Int("recipients", len(recipients)),
		)
	} else {
		s.logger.Info("Bulk email job completed successfully",
			zap.Duration("elapsed", elapsed),
			zap.Int("recipients", len(recipients)),
		)
	}
	return failed, nil
}

func (s *DispatchService) lookupSender(ctx context.Context, role string) (*model.SenderAccount, error) {
	if s.cache != nil {
		if account, ok := s.cache.Get(ctx, role); ok {
			return account, nil
		}
	}

	account, err := s.senders.FindByRole(ctx, role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSenderCredential
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, account)
	}
	return account, nil
}

// validAttachments drops paths that do not exist before the batch
// starts, so every worker skips the same broken files.
func (s *DispatchService) validAttachments(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	valid := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn("Attachment not found, skipping", zap.String("path", path))
			continue
		}
		valid = append(valid, path)
	}
	return valid
}
