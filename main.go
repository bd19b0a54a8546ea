// Command kerf applies machining features to structural elements. Feature
// scripts (zygomys Lisp) or YAML feature files declare an element and its
// features; kerf tessellates the element profile, runs the feature
// pipeline and reports the resulting mesh.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/chazu/kerf/pkg/config"
)

// watchDebounce coalesces editor write bursts.
const watchDebounce = 100 * time.Millisecond

var errStrict = errors.New("errors reported in strict mode")

type cliOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	telemetry  bool
	strict     bool
	jsonOut    bool
	mesh       bool
	parallel   int

	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "kerf",
		Short:         "Apply machining features to structural elements",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "configuration file (.yaml, .yml or .toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&opts.telemetry, "telemetry", false, "write traces and metrics to stderr")
	pf.BoolVar(&opts.strict, "strict", false, "exit non-zero when any feature reports an error")
	pf.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newApplyCmd(opts),
		newStatsCmd(opts),
		newWatchCmd(opts),
		newTypesCmd(opts),
		newClearCacheCmd(opts),
	)
	return root
}

func newApplyCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply FILE...",
		Short: "Evaluate feature files and apply their features",
		Long: `Evaluates each script (.kerf) or feature file (.yaml), tessellates the
declared element and applies its features. Partial success is reported;
with --strict any feature error makes the command fail.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				results := app.EvaluateFiles(ctx, args, opts.parallel)
				if err := opts.printResults(results); err != nil {
					return err
				}
				return opts.check(results)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.mesh, "mesh", false, "include mesh buffers in JSON output")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "j", 4, "maximum concurrent applies")
	return cmd
}

func newStatsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [FILE...]",
		Short: "Apply files, then print pipeline and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				if len(args) > 0 {
					app.EvaluateFiles(ctx, args, opts.parallel)
				}
				enc := json.NewEncoder(opts.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(app.Pipeline().Statistics())
			})
		},
	}
}

func newTypesCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List feature types in application order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				types := app.Types()
				if opts.jsonOut {
					return json.NewEncoder(opts.stdout).Encode(types)
				}
				tw := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PRIORITY\tTYPE\tPROCESSOR\tBATCH")
				for _, t := range types {
					fmt.Fprintf(tw, "%d\t%s\t%t\t%t\n", t.Priority, t.Name, t.Processor, t.Batch)
				}
				return tw.Flush()
			})
		},
	}
}

func newClearCacheCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop every cached mesh, including the persistent store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				app.Pipeline().ClearCache()
				return nil
			})
		},
	}
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-apply a feature file whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				return opts.watch(ctx, app, args[0])
			})
		},
	}
}

func (o *cliOptions) watch(ctx context.Context, app *App, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	// Editors often replace the file, so the directory is watched.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	run := func() {
		if err := o.printResults([]EvalResult{app.EvaluateFile(ctx, abs)}); err != nil {
			app.logger.Error("print result", "error", err)
		}
	}
	run()

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			app.logger.Warn("watch error", "error", err)
		case <-timer.C:
			run()
		}
	}
}

// withApp loads configuration, installs logging and telemetry and runs fn
// with a fresh App.
func (o *cliOptions) withApp(ctx context.Context, fn func(context.Context, *App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Log.Logger(o.stderr)

	telOpts, shutdown, err := setupTelemetry(cfg.Telemetry, o.stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	app, err := NewApp(cfg, logger, telOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close", "error", err)
		}
	}()
	return fn(ctx, app)
}

// loadConfig reads --config and applies flag overrides.
func (o *cliOptions) loadConfig() (config.File, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.File{}, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.telemetry {
		cfg.Telemetry.Stdout = true
	}
	if err := cfg.Validate(); err != nil {
		return config.File{}, err
	}
	return cfg, nil
}

func (o *cliOptions) printResults(results []EvalResult) error {
	if o.jsonOut {
		if !o.mesh {
			for i := range results {
				results[i].Meshes = []MeshData{}
			}
		}
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		fmt.Fprintln(o.stdout, r.summary())
		for _, e := range r.Errors {
			if e.Line > 0 {
				fmt.Fprintf(o.stdout, "  error: line %d: %s\n", e.Line, e.Message)
				continue
			}
			fmt.Fprintf(o.stdout, "  error: %s\n", e.Message)
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(o.stdout, "  warning: %s\n", w.Message)
		}
	}
	return nil
}

// check fails in strict mode when any result carries an error.
func (o *cliOptions) check(results []EvalResult) error {
	if !o.strict {
		return nil
	}
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%w: %d of %d files", errStrict, n, len(results))
	}
	return nil
}
