// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Logger construction from the configured level.

package control

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a production zap logger at the given level name.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("control: log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Sampling = nil
	return cfg.Build()
}
