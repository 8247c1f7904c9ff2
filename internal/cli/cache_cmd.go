package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"course-workbench/internal/domain"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local catalog and list cache",
	}
	cmd.AddCommand(newCacheStatusCmd(app), newCacheClearCmd(app))
	return cmd
}

func newCacheStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what is cached and when it was written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensure(); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			tools, err := app.Cache.ReadCachedCatalog(ctx)
			if err != nil {
				return err
			}
			at, err := app.Cache.CatalogSyncedAt(ctx)
			if err != nil {
				return err
			}
			printCacheLine(out, "catalog", len(tools), "tools", at, app.Now())

			for _, stage := range domain.Stages {
				recs, err := app.Cache.ReadCachedList(ctx, stage)
				if err != nil {
					return err
				}
				at, err := app.Cache.ListCachedAt(ctx, stage)
				if err != nil {
					return err
				}
				name := fmt.Sprintf("%s (%s)", stage, stage.Label())
				printCacheLine(out, name, len(recs), "records", at, app.Now())
			}
			return nil
		},
	}
}

func printCacheLine(w io.Writer, name string, n int, unit string, at, now time.Time) {
	if at.IsZero() {
		fmt.Fprintf(w, "%-14s not cached\n", name)
		return
	}
	age := max(now.Sub(at), 0).Truncate(time.Second)
	fmt.Fprintf(w, "%-14s %d %s, cached %s (%s ago)\n", name, n, unit, at.Local().Format(time.DateTime), age)
}

func newCacheClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the cached catalog and stage listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensure(); err != nil {
				return err
			}
			if err := app.Cache.Clear(cmd.Context()); err != nil {
				return err
			}
			okLine(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}
