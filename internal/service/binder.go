package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TemplateRenderer renders a named template with a variable bag.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, variables map[string]string) (string, error)
}

// VariableSource fetches the per-member variable bag.
type VariableSource interface {
	FetchTemplateVariables(ctx context.Context, usn string) (map[string]string, error)
}

// ContentBinder turns one resolved target into a concrete (address,
// body) pair: per-member template rendering, degraded direct-address
// rendering, or literal body passthrough.
type ContentBinder struct {
	variables VariableSource
	templates TemplateRenderer
	logger    *zap.Logger
}

func NewContentBinder(variables VariableSource, templates TemplateRenderer, logger *zap.Logger) *ContentBinder {
	return &ContentBinder{variables: variables, templates: templates, logger: logger}
}

// Bind resolves the final address and body for one target. baseVars
// are the caller-supplied template variables; per-member variables
// override them on conflict.
func (b *ContentBinder) Bind(ctx context.Context, identifier, templateName, rawBody string, baseVars map[string]string) (addr, body string, err error) {
	isDirect := strings.Contains(identifier, "@") && IsValidEmail(identifier)

	if templateName != "" {
		if isDirect {
			// No member record to bind against, so synthesize a
			// minimal bag from the address itself. Degraded but valid.
			b.logger.Warn("Using template with direct address, limited variable support",
				zap.String("email", identifier),
			)
			vars := mergeVariables(baseVars, map[string]string{
				"email": identifier,
				"name":  identifier[:strings.Index(identifier, "@")],
			})
			body, err = b.templates.Render(ctx, templateName, vars)
			if err != nil {
				return "", "", err
			}
			return identifier, body, nil
		}

		memberVars, err := b.variables.FetchTemplateVariables(ctx, identifier)
		if err != nil {
			return "", "", err
		}
		vars := mergeVariables(baseVars, memberVars)
		body, err = b.templates.Render(ctx, templateName, vars)
		if err != nil {
			return "", "", err
		}
		addr = memberVars["email"]
		if !strings.Contains(addr, "@") {
			return "", "", fmt.Errorf("no valid address for member %q", identifier)
		}
		return addr, body, nil
	}

	// Literal body path.
	if isDirect {
		addr = identifier
	} else {
		memberVars, err := b.variables.FetchTemplateVariables(ctx, identifier)
		if err != nil {
			return "", "", err
		}
		addr = memberVars["email"]
		if !strings.Contains(addr, "@") {
			return "", "", fmt.Errorf("no valid address for member %q", identifier)
		}
	}

	if rawBody == "" {
		return "", "", fmt.Errorf("%w for %s", ErrEmptyBody, identifier)
	}
	return addr, rawBody, nil
}

func mergeVariables(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
