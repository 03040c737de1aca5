package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/ui"
)

func configCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display or create the configuration",
		Description: `Print the effective configuration: defaults, then the config file,
   then MIRRORSYNC_* environment variables.

   Examples:
     mirrorsync config
     mirrorsync config --path
     mirrorsync config --init --toml`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "path",
				Usage: "Print the config file location only",
			},
			&cli.BoolFlag{
				Name:  "init",
				Usage: "Write the default configuration to the config file",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file with --init",
			},
			&cli.BoolFlag{
				Name:  "toml",
				Usage: "Use TOML instead of YAML",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if path == "" {
				path = config.FilePath()
				if cmd.Bool("toml") && !config.Exists() {
					path = strings.TrimSuffix(path, filepath.Ext(path)) + ".toml"
				}
			}

			switch {
			case cmd.Bool("path"):
				_, _ = fmt.Fprintln(e.stdout, path)
				return nil
			case cmd.Bool("init"):
				return initConfig(e, path, cmd.Bool("force"))
			}

			data, err := e.cfg.Encode(cmd.Bool("toml"))
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = e.stdout.Write(data)
			return err
		},
	}
}

func initConfig(e *env, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().SaveToPath(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintln(e.stdout, ui.StatusSuccess("Wrote "+path))
	return nil
}
