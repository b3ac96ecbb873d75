package commands

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"
)

// FeedCommand returns the command that prints an assembled feed page.
func FeedCommand(deps *CLIDependencies) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Print a feed page as JSON",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number starting at 1"},
			&cli.IntFlag{Name: "size", Value: 20, Usage: "Posts per page"},
			&cli.BoolFlag{Name: "fresh", Usage: "Bypass the feed cache"},
		},
		Action: handleFeed(deps),
	}
}

// handleFeed handles the 'feed' command.
func handleFeed(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		page, size := int(c.Int("page")), int(c.Int("size"))

		load := deps.Feed.Cached
		if c.Bool("fresh") {
			load = deps.Feed.Page
		}

		result, err := load(ctx, page, size)
		if err != nil {
			return err
		}

		data, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode feed page: %w", err)
		}

		_, _ = fmt.Fprintln(deps.Out, string(data))
		return nil
	}
}
