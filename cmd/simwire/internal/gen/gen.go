package gen

import (
	"log/slog"
	"time"

	"github.com/simwire/simwire/cmd/simwire/internal/config"
)

// Cmd compiles the configured protos and writes both generated trees, the
// in-memory fabric bindings under sim/ and the gRPC bindings beside them.
type Cmd struct {
	config.Flags `embed:""`
}

func (c *Cmd) Run() error {
	opts, err := config.Load(c.Flags)
	if err != nil {
		return err
	}

	slog.Info("generating", "protos", len(opts.Protos), "out", opts.Out)
	start := time.Now()
	if err := opts.Builder().Compile(opts.Protos, opts.Includes); err != nil {
		return err
	}
	slog.Info("generation complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
