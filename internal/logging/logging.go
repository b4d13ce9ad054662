// Package logging builds the zap logger used across cladeguess.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and encoding of a logger.
type Options struct {
	Level   string // debug, info, warn, error; "" means info
	Format  string // console or json
	Verbose bool   // forces debug level
}

// New returns a logger writing to w. The console format omits timestamps so
// that repeated runs produce identical stderr.
func New(opts Options, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	switch opts.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console", "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = ""
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("failed to initialize logger: unknown format %q", opts.Format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}
