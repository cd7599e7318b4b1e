package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"

	"github.com/Masterminds/sprig/v3"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailroom/internal/model"
)

// TemplateStore is the registry mapping template names to files.
type TemplateStore interface {
	FindByName(ctx context.Context, name string) (*model.EmailTemplate, error)
}

type TemplateService struct {
	store  TemplateStore
	logger *zap.Logger
}

func NewTemplateService(store TemplateStore, logger *zap.Logger) *TemplateService {
	return &TemplateService{store: store, logger: logger}
}

// Render loads a registered template file and executes it with the
// given variables. ErrTemplateNotFound means no registration exists;
// ErrTemplateFileMissing means the registered path is unreadable.
func (s *TemplateService) Render(ctx context.Context, name string, variables map[string]string) (string, error) {
	reg, err := s.store.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("Template not registered", zap.String("template", name))
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("template lookup %q: %w", name, err)
	}

	raw, err := os.ReadFile(reg.FilePath)
	if err != nil {
		s.logger.Error("Template file unreadable",
			zap.String("template", name),
			zap.String("path", reg.FilePath),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %s", ErrTemplateFileMissing, reg.FilePath)
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap(sprig.FuncMap())).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}

	s.logger.Debug("Template rendered", zap.String("template", name))
	return buf.String(), nil
}

// Exists reports whether a template name is registered, without
// touching the backing file. The API uses it to fail a templated batch
// up front.
func (s *TemplateService) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.store.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
