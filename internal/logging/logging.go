// Package logging builds the zap logger of the clinicpipe commands.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askiada/clinic-pipeline/internal/config"
)

// New builds a JSON production logger, or a console development logger, at the configured level.
// verbose forces the debug level. outputs replaces stderr, e.g. with a file while the terminal
// board owns the screen.
func New(cfg config.LoggingConfig, verbose bool, outputs ...string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if len(outputs) > 0 {
		zcfg.OutputPaths = outputs
		zcfg.ErrorOutputPaths = outputs
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}

	return logger, nil
}
