package service

import (
	"errors"
	"regexp"
)

var (
	// Batch-fatal configuration failures.
	ErrNoSenderCredential = errors.New("no sender credentials for role")
	ErrNoRecipients       = errors.New("no valid recipients")

	// Template failures. Not-found is batch-fatal on the API's
	// templated path and per-target inside bulk dispatch.
	ErrTemplateNotFound    = errors.New("template not found")
	ErrTemplateFileMissing = errors.New("template file missing")

	// Nothing to send: no body and no template for a target.
	ErrEmptyBody = errors.New("no body provided")
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// IsValidEmail applies the strict syntactic check used before any
// message is handed to the transport.
func IsValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}
