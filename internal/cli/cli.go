// Package cli provides the command-line interface for mirrorsync.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/ui"
	"github.com/klauern/mirrorsync/internal/util"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// env is the state shared by every command of one invocation.
type env struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	e := &env{stdout: stdout, stderr: stderr}

	app := &cli.Command{
		Name:      "mirrorsync",
		Usage:     "Mirror a directory tree or a music library onto another location",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Read configuration from `FILE` instead of the default location",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			e.cfg = cfg
			if err := configureColors(cmd, cfg, stdout); err != nil {
				return ctx, err
			}
			logger, err := configureLogging(cmd, cfg, stderr)
			if err != nil {
				return ctx, err
			}
			return logging.NewContext(ctx, logger), nil
		},
		Commands: []*cli.Command{
			dirsCommand(e),
			musicCommand(e),
			transcodeCommand(e),
			configCommand(e),
			versionCommand(e),
		},
	}
	return app.Run(ctx, args)
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadOrDefault(util.ExpandPath(path, ""))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configureColors sets up color output from the flags and configuration.
func configureColors(cmd *cli.Command, cfg *config.Config, w io.Writer) error {
	mode := cfg.Output.Color
	if cmd.Bool("no-color") {
		mode = ui.ColorNever
	}
	return ui.SetColorMode(mode, w)
}

// configureLogging sets up the logging level and format from the flags and
// configuration. Flags win.
func configureLogging(cmd *cli.Command, cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	opts := logging.DefaultOptions()
	opts.Output = w

	if cfg.Output.LogLevel != "" {
		level, err := logging.ParseLevel(cfg.Output.LogLevel)
		if err != nil {
			return nil, err
		}
		opts.Level = level
	}
	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}

	format := cfg.Output.LogFormat
	if cmd.IsSet("log-format") {
		format = cmd.String("log-format")
	}
	if !slices.Contains(config.LogFormats, format) {
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	opts.JSON = format == "json"

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured",
		slog.String("level", opts.Level.String()),
		slog.String("format", format),
	)

	return logger, nil
}
