package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// CacheCommands returns all view cache commands.
func CacheCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "scopes",
			Usage:  "List registered cache scopes",
			Action: handleScopes(deps),
		},
		{
			Name:      "stats",
			Usage:     "Count cached entries per scope",
			ArgsUsage: "[SCOPE]",
			Action:    handleStats(deps),
		},
		{
			Name:      "evict",
			Usage:     "Evict one cached entry",
			ArgsUsage: "SCOPE DISCRIMINATOR",
			Action:    handleEvict(deps),
		},
		{
			Name:      "evict-all",
			Usage:     "Evict every cached entry of a scope",
			ArgsUsage: "SCOPE",
			Action:    handleEvictAll(deps),
		},
		{
			Name:      "rotate",
			Usage:     "Orphan every cached entry of a scope by bumping its generation",
			ArgsUsage: "SCOPE",
			Action:    handleRotate(deps),
		},
	}
}

// handleScopes handles the 'cache scopes' command.
func handleScopes(deps *CLIDependencies) cli.ActionFunc {
	return func(_ context.Context, _ *cli.Command) error {
		w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SCOPE\tCLASS")
		for _, scope := range deps.Registry.Scopes() {
			ns, err := deps.Registry.Namespace(scope)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\n", scope, ns.Class())
		}
		return w.Flush()
	}
}

// handleStats handles the 'cache stats' command.
func handleStats(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() == 1 {
			count, err := deps.Registry.Stats(ctx, c.Args().First())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(deps.Out, "%s\t%d\n", c.Args().First(), count)
			return nil
		}

		counts, err := deps.Registry.StatsAll(ctx)
		if err != nil {
			deps.Logger.Warn("Some scopes could not be counted", zap.Error(err))
		}

		w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SCOPE\tKEYS")
		for _, scope := range deps.Registry.Scopes() {
			count, ok := counts[scope]
			if !ok {
				_, _ = fmt.Fprintf(w, "%s\t?\n", scope)
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\n", scope, count)
		}
		return w.Flush()
	}
}

// handleEvict handles the 'cache evict' command.
func handleEvict(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrDiscriminatorRequired
		}

		scope, discriminator := c.Args().Get(0), c.Args().Get(1)
		if err := deps.Registry.Evict(ctx, scope, discriminator); err != nil {
			return err
		}

		deps.Logger.Info("Evicted cache entry",
			zap.String("scope", scope),
			zap.String("discriminator", discriminator))
		return nil
	}
}

// handleEvictAll handles the 'cache evict-all' command.
func handleEvictAll(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrScopeRequired
		}

		deleted, err := deps.Registry.EvictAll(ctx, c.Args().First())
		if err != nil {
			return err
		}

		deps.Logger.Info("Evicted cache scope",
			zap.String("scope", c.Args().First()),
			zap.Int("deleted", deleted))
		_, _ = fmt.Fprintf(deps.Out, "deleted %d keys\n", deleted)
		return nil
	}
}

// handleRotate handles the 'cache rotate' command.
func handleRotate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrScopeRequired
		}

		ns, err := deps.Registry.Namespace(c.Args().First())
		if err != nil {
			return err
		}

		if err := ns.Rotate(ctx); err != nil {
			return err
		}

		deps.Logger.Info("Rotated cache scope", zap.String("scope", ns.Scope()))
		return nil
	}
}
