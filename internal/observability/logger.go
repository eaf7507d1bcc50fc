package observability

import (
	"log/slog"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const serviceName = "brewery-data-etl"

// NewLogger builds the service logger from LOG_LEVEL and LOG_FORMAT, tags every
// entry with the service name and makes it the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
