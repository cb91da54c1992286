package observability

import (
	"go.uber.org/zap"

	"github.com/condolabs/condoledger/internal/config"
)

// NewLogger builds the process-wide logger. Debug server mode switches to the
// human-readable development encoder.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Server.Mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
