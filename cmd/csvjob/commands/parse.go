package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/urfave/cli/v3"
)

// ParseAction projects a local processed file and prints it.
func ParseAction(ctx context.Context, cmd *cli.Command) error {
	dialect, err := core.ParseDialect(cmd.String("dialect"))
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	table, err := core.ParseReader(f, cmd.StringSlice("columns"), core.WithDialect(dialect))
	if err != nil {
		return err
	}

	return finish(cmd, core.NewTableView(table, int(cmd.Int("rows-per-page"))))
}
