package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/simwire/simwire/cmd/simwire/internal/check"
	"github.com/simwire/simwire/cmd/simwire/internal/gen"
	"github.com/simwire/simwire/cmd/simwire/internal/watch"
)

type CLI struct {
	Verbose bool `help:"Enable debug logging." short:"v"`

	Version VersionCmd `cmd:"" help:"Print version information."`
	Gen     gen.Cmd    `cmd:"" help:"Generate Go bindings for the in-memory fabric and gRPC."`
	Check   check.Cmd  `cmd:"" help:"Compile protos and report what would be generated, without writing files."`
	Watch   watch.Cmd  `cmd:"" help:"Generate, then regenerate whenever an input changes."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(Version())
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("simwire"),
		kong.Description("Generator for paired in-memory and gRPC service bindings."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
