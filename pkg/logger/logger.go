package logger

import (
	"go.uber.org/zap"
)

// NewLogger builds the production logger used across the service.
// Construct it once in main and inject it; components never reach for
// a package-level logger.
func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
