package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"course-workbench/internal/catalog"
)

func newCatalogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Sync and browse the tool catalog",
	}
	cmd.AddCommand(newCatalogSyncCmd(app), newCatalogListCmd(app))
	return cmd
}

func newCatalogSyncCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the tool catalog and refresh the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensureSheet(); err != nil {
				return err
			}
			cat, err := app.Syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case cat.Stale:
				warnLine(out, "sync failed (%v); using %d cached tools", cat.Cause, len(cat.Tools))
			case !cat.Usable():
				warnLine(out, "catalog is empty; tool selection is unavailable")
			default:
				okLine(out, "synced %d tools", len(cat.Tools))
			}
			return nil
		},
	}
}

func newCatalogListCmd(app *App) *cobra.Command {
	var (
		f          catalog.Filter
		categories bool
		sync       bool
		asJSON     bool
		fields     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tools from the cached catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensure(); err != nil {
				return err
			}
			ctx := cmd.Context()
			cat := app.Syncer.Cached(ctx)
			if sync || !cat.Usable() {
				var err error
				if cat, err = app.Syncer.Sync(ctx); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()

			if categories {
				for _, c := range cat.Categories() {
					fmt.Fprintln(out, c)
				}
				return nil
			}

			tools := cat.Filter(f)
			if asJSON {
				return writeJSON(out, tools, fields)
			}
			if len(tools) == 0 {
				fmt.Fprintln(out, "No tools found.")
				return nil
			}
			for _, t := range tools {
				line := t.Label()
				if t.Category != "" {
					line += "  [" + t.Category + "]"
				}
				fmt.Fprintln(out, line)
			}
			if cat.Stale {
				fmt.Fprintf(out, "%s %d tools\n", staleTag, len(tools))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Search code, name, category, core and pain points")
	cmd.Flags().StringVar(&f.Category, "category", "", "Only tools in this category")
	cmd.Flags().StringVar(&f.Prefix, "prefix", "", "Only tools whose code starts with this prefix")
	cmd.Flags().BoolVar(&categories, "categories", false, "List categories instead of tools")
	cmd.Flags().BoolVar(&sync, "sync", false, "Sync before listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&fields, "fields", "", "Comma-separated JSON keys to keep (with --json)")
	return cmd
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
