package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/klauern/mirrorsync/internal/audit"
	"github.com/klauern/mirrorsync/internal/config"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/progress"
	"github.com/klauern/mirrorsync/internal/sync"
	"github.com/klauern/mirrorsync/internal/transcode"
	"github.com/klauern/mirrorsync/internal/ui"
	"github.com/klauern/mirrorsync/internal/ui/tui"
	"github.com/klauern/mirrorsync/internal/util"
)

// Flags shared by the sync commands.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "commit",
			Usage: "Apply the changes (without it nothing is modified)",
		},
		&cli.StringFlag{
			Name:    "logfile",
			Aliases: []string{"l"},
			Usage:   "Append an audit record of every action to `FILE`",
		},
		&cli.BoolFlag{
			Name:  "review",
			Usage: "Review the plan interactively before applying it (requires --commit)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Number of concurrent file operations (0 = one per CPU)",
		},
	}
}

func dirsCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "dirs",
		Usage:     "Mirror a directory tree onto another",
		UsageText: "mirrorsync dirs [options] <source> <dest>",
		Description: `Make <dest> an exact copy of <source>: missing files are copied,
   changed files replaced and files or directories absent from <source>
   removed. Entries starting with the hidden prefix are ignored in both trees.

   Examples:
     mirrorsync dirs ~/Documents /mnt/backup/Documents
     mirrorsync dirs --commit --exclude '**/*.tmp' ~/Documents /mnt/backup/Documents`,
		Flags: append(runFlags(),
			&cli.StringSliceFlag{
				Name:    "exclude",
				Aliases: []string{"x"},
				Usage:   "Skip paths matching `GLOB` in both trees (repeatable)",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return errors.New("dirs requires exactly 2 arguments: <source> <dest>")
			}

			opts, err := e.cfg.MirrorOptions(args.Get(0), args.Get(1), cmd.StringSlice("exclude"))
			if err != nil {
				return fmt.Errorf("invalid mirror settings: %w", err)
			}
			if cmd.IsSet("workers") {
				opts.Workers = cmd.Int("workers")
			}
			opts.DryRun = !cmd.Bool("commit")

			logfile := cmd.String("logfile")
			if logfile == "" {
				logfile = e.cfg.Output.AuditLog
			}
			return e.runSync(ctx, opts, logfile, cmd.Bool("review"))
		},
	}
}

func musicCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "music",
		Usage:     "Sync a music library, transcoding lossless files",
		UsageText: "mirrorsync music [options] [<source> <dest>]",
		Description: `Sync a music library onto a player or another directory. Only
   music files are considered and each track is taken from its most
   preferred format. FLAC files are transcoded; other formats are copied.
   Destination names are sanitized for FAT filesystems.

   Without arguments the roots come from --profile or from the music
   section of the configuration.

   Examples:
     mirrorsync music ~/Music /run/media/player/Music
     mirrorsync music --commit --format aac --bitrate 128 ~/Music /mnt/phone/Music
     mirrorsync music --commit --profile nokia3310`,
		Flags: append(runFlags(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Transcode to `FORMAT`: opus, vorbis or aac",
			},
			&cli.IntFlag{
				Name:    "bitrate",
				Aliases: []string{"b"},
				Usage:   "Encoder bitrate in kbit/s (0 = encoder default)",
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Use the named profile from the configuration",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target, err := e.musicTarget(cmd)
			if err != nil {
				return err
			}

			codec, err := e.codec(cmd, target.Format, target.Bitrate)
			if err != nil {
				return err
			}
			commit := cmd.Bool("commit")
			if commit {
				if err := e.cfg.Music.Tools.Check(codec.Format()); err != nil {
					return err
				}
			}

			opts, err := e.cfg.MusicOptions(target.Source, target.Dest, codec)
			if err != nil {
				return fmt.Errorf("invalid music settings: %w", err)
			}
			if cmd.IsSet("workers") {
				opts.Workers = cmd.Int("workers")
			}
			opts.DryRun = !commit

			logfile := cmd.String("logfile")
			if logfile == "" {
				logfile = target.AuditLog
			}
			return e.runSync(ctx, opts, logfile, cmd.Bool("review"))
		},
	}
}

// musicTarget resolves roots, format and bitrate. Arguments override a
// --profile, which overrides the music section of the configuration.
func (e *env) musicTarget(cmd *cli.Command) (config.Profile, error) {
	target := config.Profile{
		Source:   e.cfg.Music.Source,
		Dest:     e.cfg.Music.Dest,
		Format:   e.cfg.Music.Format,
		Bitrate:  e.cfg.Music.Bitrate,
		AuditLog: e.cfg.Output.AuditLog,
	}
	if name := cmd.String("profile"); name != "" {
		p, err := e.cfg.Profile(name)
		if err != nil {
			return config.Profile{}, err
		}
		target = p
	}

	args := cmd.Args()
	switch args.Len() {
	case 0:
	case 2:
		target.Source, target.Dest = args.Get(0), args.Get(1)
	default:
		return config.Profile{}, errors.New("music takes either no arguments or exactly 2: <source> <dest>")
	}
	if target.Source == "" || target.Dest == "" {
		return config.Profile{}, errors.New("music requires <source> and <dest> (as arguments, a --profile or music.source/music.dest in the configuration)")
	}
	return target, nil
}

// codec builds the encoder, letting --format and --bitrate override the
// given defaults.
func (e *env) codec(cmd *cli.Command, format string, bitrate int) (*transcode.Codec, error) {
	if cmd.IsSet("format") {
		format = cmd.String("format")
	}
	if cmd.IsSet("bitrate") {
		bitrate = cmd.Int("bitrate")
	}
	f, err := transcode.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return transcode.New(f, e.cfg.Music.Tools, bitrate)
}

func transcodeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "transcode",
		Usage:     "Transcode a single FLAC file, keeping its tags",
		UsageText: "mirrorsync transcode [options] <input.flac> <output>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Transcode to `FORMAT`: opus, vorbis or aac",
			},
			&cli.IntFlag{
				Name:    "bitrate",
				Aliases: []string{"b"},
				Usage:   "Encoder bitrate in kbit/s (0 = encoder default)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return errors.New("transcode requires exactly 2 arguments: <input> <output>")
			}
			in := util.ExpandPath(args.Get(0), "")
			out := util.ExpandPath(args.Get(1), "")

			codec, err := e.codec(cmd, e.cfg.Music.Format, e.cfg.Music.Bitrate)
			if err != nil {
				return err
			}
			if err := e.cfg.Music.Tools.Check(codec.Format()); err != nil {
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				// #nosec G301 - output directories follow the user's umask
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			if err := transcode.Transcode(ctx, codec, in, out); err != nil {
				if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					logging.Warn("failed to remove partial output", logging.Path(out), logging.Err(rmErr))
				}
				return err
			}
			_, _ = fmt.Fprintf(e.stdout, "%s\n", ui.StatusSuccess(fmt.Sprintf("%s -> %s", in, out)))
			return nil
		},
	}
}

// runSync wires the reporters and runs one engine. Per-file failures are
// reported but do not fail the command; an interrupted run does.
func (e *env) runSync(ctx context.Context, opts sync.Options, logfile string, review bool) error {
	if review && opts.DryRun {
		return errors.New("--review requires --commit")
	}

	fsys := afero.NewOsFs()
	options := []sync.Option{
		sync.WithReporter(ui.NewConsole(e.stdout)),
		sync.WithReporter(progress.NewReporter(e.stderr)),
	}

	if logfile != "" {
		log, err := audit.Open(fsys, util.ExpandPath(logfile, ""))
		if err != nil {
			return err
		}
		defer func() {
			if err := log.Close(); err != nil {
				logging.Warn("failed to write audit log", logging.Path(logfile), logging.Err(err))
			}
		}()
		options = append(options, sync.WithReporter(log))
	}
	if review {
		options = append(options, sync.WithConfirm(tui.ConfirmPlan))
	}

	res, err := sync.New(fsys, opts, options...).Run(ctx)
	if errors.Is(err, sync.ErrDeclined) {
		_, _ = fmt.Fprintln(e.stdout, ui.StatusSkipped("Plan declined, destination left unchanged"))
		return err
	}
	if err != nil {
		return err
	}

	if failed := res.Failed(); len(failed) > 0 {
		logging.Warn("some files could not be synced", slog.Int("failed", len(failed)))
	}
	if res.Aborted {
		return fmt.Errorf("sync interrupted: %d action(s) not attempted", len(res.Skipped()))
	}
	return nil
}
