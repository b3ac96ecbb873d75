package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/tripnest/tripnest/internal/counter"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// CounterCommands returns all counter commands.
func CounterCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "show",
			Usage:     "Show like and view counts of posts",
			ArgsUsage: "POST_ID...",
			Action:    handleShow(deps),
		},
		{
			Name:      "pull",
			Usage:     "Rebuild fast counters from durable storage",
			ArgsUsage: "[POST_ID...]",
			Action:    handlePull(deps),
		},
		{
			Name:   "push",
			Usage:  "Write fast counters into the summary table",
			Action: handlePush(deps),
		},
	}
}

// handleShow handles the 'counters show' command.
func handleShow(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		ids, err := parseIDs(c.Args().Slice())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrPostIDRequired
		}

		counts, err := deps.Counters.Counts(ctx, ids)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "POST\tLIKES\tVIEWS")
		for _, id := range ids {
			_, _ = fmt.Fprintf(w, "%d\t%d\t%d\n", id, counts[id].Likes, counts[id].Views)
		}
		return w.Flush()
	}
}

// handlePull handles the 'counters pull' command.
func handlePull(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		ids, err := parseIDs(c.Args().Slice())
		if err != nil {
			return err
		}

		report, err := deps.Counters.SyncFromDurable(ctx, ids...)
		if err != nil {
			return err
		}

		printReport(deps, "pull", report)
		return nil
	}
}

// handlePush handles the 'counters push' command.
func handlePush(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		report, err := deps.Counters.SyncToDurable(ctx)
		if err != nil {
			return err
		}

		printReport(deps, "push", report)
		return nil
	}
}

func printReport(deps *CLIDependencies, direction string, report *counter.SyncReport) {
	deps.Logger.Info("Counter sync finished",
		zap.String("direction", direction),
		zap.Int("synced", report.Synced),
		zap.Int("failed", len(report.Failed)))

	_, _ = fmt.Fprintf(deps.Out, "synced %d posts, %d failed\n", report.Synced, len(report.Failed))
	for _, id := range slices.Sorted(maps.Keys(report.Failed)) {
		_, _ = fmt.Fprintf(deps.Out, "  post %d: %v\n", id, report.Failed[id])
	}
}
