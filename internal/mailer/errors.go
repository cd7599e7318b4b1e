package mailer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed classification the delivery retry policy
// branches on. Terminal kinds (auth, recipient) are never retried;
// everything else is assumed transient and may succeed on retry.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindAuth
	KindRecipient
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRecipient:
		return "recipient"
	default:
		return "transient"
	}
}

// Terminal reports whether retrying cannot help.
func (k ErrorKind) Terminal() bool {
	return k == KindAuth || k == KindRecipient
}

type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp send (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

var (
	authMarkers = []string{
		"535", "534", "530 5.7",
		"username and password not accepted",
		"authentication failed",
		"invalid credentials",
	}
	recipientMarkers = []string{
		"550", "551", "553",
		"recipient address rejected",
		"user unknown",
		"no such user",
		"mailbox unavailable",
	}
)

// Classify folds a transport error into the closed kind set. SMTP
// libraries surface reply codes inside error text, so matching is on
// the lowered message.
func Classify(err error) *SendError {
	if err == nil {
		return nil
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}

	msg := strings.ToLower(err.Error())

	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return &SendError{Kind: KindAuth, Err: err}
		}
	}
	for _, marker := range recipientMarkers {
		if strings.Contains(msg, marker) {
			return &SendError{Kind: KindRecipient, Err: err}
		}
	}

	// Disconnects, timeouts and anything unclassified retry.
	return &SendError{Kind: KindTransient, Err: err}
}
