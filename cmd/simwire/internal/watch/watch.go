package watch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/simwire/simwire/cmd/simwire/internal/config"
)

// Cmd generates once, then watches every input the compiler touched and
// regenerates when one changes. A fresh builder backs each run since a
// builder compiles only once.
type Cmd struct {
	config.Flags `embed:""`
	Debounce     time.Duration `help:"Quiet period after a change before regenerating." default:"200ms"`
}

func (c *Cmd) Run() error {
	opts, err := config.Load(c.Flags)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Until the first successful run reports what it read, fall back to
	// watching the configured inputs as given.
	seed := make([]string, 0, len(opts.Protos)+len(opts.Includes))
	seed = append(seed, opts.Protos...)
	seed = append(seed, opts.Includes...)

	inputs := generate(opts, seed)
	dirs, files := watchTargets(inputs)
	syncWatches(watcher, dirs)
	slog.Info("watching for changes", "dirs", len(dirs))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantChange(event, files) {
				continue
			}
			slog.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(c.Debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		case <-debounce.C:
			inputs = generate(opts, inputs)
			dirs, files = watchTargets(inputs)
			syncWatches(watcher, dirs)
		}
	}
}

// generate runs one full generation pass and returns the inputs the
// compiler reported reading. A failed run keeps the previous inputs so a
// broken proto still retriggers once it is fixed.
func generate(opts *config.Options, previous []string) []string {
	var signals bytes.Buffer
	b := opts.Builder().EmitWatchSignals(true).WatchOutput(&signals)

	slog.Info("generating", "protos", len(opts.Protos), "out", opts.Out)
	start := time.Now()
	if err := b.Compile(opts.Protos, opts.Includes); err != nil {
		slog.Error("generation failed", "error", err)
	} else {
		slog.Info("generation complete", "duration", time.Since(start).Round(time.Millisecond))
	}

	if inputs := parseWatchSignals(signals.String()); len(inputs) > 0 {
		return inputs
	}
	return previous
}

// parseWatchSignals extracts the paths from the "simwire:watch=<path>"
// lines the generator emits for each input it depended on.
func parseWatchSignals(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if path, ok := strings.CutPrefix(line, "simwire:watch="); ok && path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

// watchTargets splits the compiler's inputs into the directories to
// register with the watcher and the exact files worth reacting to. Files
// are watched through their parent directory so editors that replace a
// file on save do not break the watch.
func watchTargets(inputs []string) (dirs, files map[string]bool) {
	dirs = make(map[string]bool)
	files = make(map[string]bool)
	for _, input := range inputs {
		if info, err := os.Stat(input); err == nil && info.IsDir() {
			dirs[filepath.Clean(input)] = true
			continue
		}
		files[filepath.Clean(input)] = true
		dirs[filepath.Dir(input)] = true
	}
	return dirs, files
}

// syncWatches brings the watcher's directory set in line with dirs.
func syncWatches(watcher *fsnotify.Watcher, dirs map[string]bool) {
	current := make(map[string]bool)
	for _, d := range watcher.WatchList() {
		current[d] = true
	}
	for d := range dirs {
		if current[d] {
			continue
		}
		if err := watcher.Add(d); err != nil {
			slog.Warn("cannot watch", "path", d, "error", err)
		}
	}
	for d := range current {
		if !dirs[d] {
			watcher.Remove(d)
		}
	}
}

// relevantChange reports whether a filesystem event should trigger
// regeneration: a change to a known input file, or to any proto under a
// watched directory.
func relevantChange(event fsnotify.Event, files map[string]bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if files[filepath.Clean(event.Name)] {
		return true
	}
	return filepath.Ext(event.Name) == ".proto"
}
