package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"
)

func versionCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Display version and build information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _ = fmt.Fprintf(e.stdout, "mirrorsync version %s\n", Version)
			_, _ = fmt.Fprintf(e.stdout, "  commit: %s\n", Commit)
			_, _ = fmt.Fprintf(e.stdout, "  built: %s\n", BuildDate)
			_, _ = fmt.Fprintf(e.stdout, "  go: %s\n", runtime.Version())
			return nil
		},
	}
}
