package commands

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/tripnest/tripnest/internal/worker/core"
	"github.com/urfave/cli/v3"
)

// WorkerCommands returns all worker status commands.
func WorkerCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "list",
			Usage:  "List workers that reported a heartbeat",
			Action: handleWorkers(deps),
		},
	}
}

// handleWorkers handles the 'workers list' command.
func handleWorkers(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		statuses, err := deps.Monitor.GetAllStatuses(ctx)
		if err != nil {
			return err
		}

		slices.SortFunc(statuses, func(a, b core.Status) int {
			return cmp.Or(cmp.Compare(a.WorkerType, b.WorkerType), cmp.Compare(a.WorkerID, b.WorkerID))
		})

		now := time.Now()
		w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TYPE\tID\tSTATE\tTASK\tSYNCED\tFAILED\tLAST SEEN")
		for _, status := range statuses {
			state := "healthy"
			switch {
			case status.IsStale(now):
				state = "offline"
			case !status.IsHealthy:
				state = "unhealthy"
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				status.WorkerType, status.WorkerID, state, status.CurrentTask,
				status.LastSynced, status.LastFailed, now.Sub(status.LastSeen).Round(time.Second))
		}
		return w.Flush()
	}
}
