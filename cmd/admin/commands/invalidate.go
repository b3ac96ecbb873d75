package commands

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tripnest/tripnest/internal/invalidation"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// InvalidateCommand returns the command that fires a mutation event by hand.
func InvalidateCommand(deps *CLIDependencies) *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Usage:     "Fire an invalidation event as if the mutation had just committed",
		ArgsUsage: "EVENT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "post", Usage: "Post ID"},
			&cli.StringFlag{Name: "author", Usage: "Post author ID"},
			&cli.StringFlag{Name: "user", Usage: "User ID"},
			&cli.StringFlag{Name: "trip", Usage: "Trip ID"},
			&cli.StringFlag{Name: "users", Usage: "Comma separated IDs of users whose trip lists changed"},
		},
		Action: handleInvalidate(deps),
	}
}

// handleInvalidate handles the 'invalidate' command.
func handleInvalidate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrEventRequired
		}

		eventType := invalidation.EventType(c.Args().First())
		handlers := deps.Bus.Handlers(eventType)
		if len(handlers) == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
		}

		event := invalidation.Event{Type: eventType}
		for name, target := range map[string]*int64{
			"post":   &event.PostID,
			"author": &event.AuthorID,
			"user":   &event.UserID,
			"trip":   &event.TripID,
		} {
			if !c.IsSet(name) {
				continue
			}
			ids, err := parseIDs([]string{c.String(name)})
			if err != nil {
				return err
			}
			if len(ids) != 1 {
				return fmt.Errorf("%w: --%s takes one ID", ErrInvalidID, name)
			}
			*target = ids[0]
		}

		users, err := parseIDs([]string{c.String("users")})
		if err != nil {
			return err
		}
		event.UserIDs = users

		failed := deps.Bus.Fire(ctx, event)

		data, err := sonic.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}

		deps.Logger.Info("Fired invalidation event",
			zap.ByteString("event", data),
			zap.Strings("handlers", handlers),
			zap.Int("failed", failed))
		_, _ = fmt.Fprintf(deps.Out, "ran %d handlers, %d failed\n", len(handlers), failed)
		return nil
	}
}
