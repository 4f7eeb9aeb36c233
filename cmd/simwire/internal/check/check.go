package check

import (
	"fmt"

	"github.com/simwire/simwire/cmd/simwire/internal/config"
	"github.com/simwire/simwire/simwiregen/sink"
)

// Cmd runs the full generation pipeline against an in-memory sink and
// reports what would be written, leaving the output directory untouched.
type Cmd struct {
	config.Flags `embed:""`
	List         bool `help:"List every file that would be written." short:"l"`
}

func (c *Cmd) Run() error {
	opts, err := config.Load(c.Flags)
	if err != nil {
		return err
	}

	ms := sink.NewMemorySink()
	if err := opts.Builder().CompileInto(ms, opts.Protos, opts.Includes); err != nil {
		return err
	}

	fmt.Printf("✓ %d protos compile\n", len(opts.Protos))

	paths := ms.Paths()
	if c.List {
		for _, p := range paths {
			fmt.Printf("  %s (%d bytes)\n", p, len(ms.Get(p)))
		}
	}
	fmt.Printf("✓ %d files would be written under %s\n", len(paths), opts.Out)
	return nil
}
