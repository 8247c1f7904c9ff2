package cli

import (
	"github.com/spf13/cobra"

	"course-workbench/internal/compose"
	"course-workbench/internal/domain"
)

func newModuleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Build module records from finished sessions",
	}
	cmd.AddCommand(newModuleCandidatesCmd(app), newModuleComposeCmd(app))
	return cmd
}

func newModuleCandidatesCmd(app *App) *cobra.Command {
	var (
		query  string
		asJSON bool
		fields string
	)
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List final records that can go into a module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensure(); err != nil {
				return err
			}
			res, err := app.Builder.Candidates(cmd.Context(), query)
			if err != nil {
				return err
			}
			if res.Stale {
				warnLine(cmd.ErrOrStderr(), "course API unreachable (%v); showing cached final list", res.Cause)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res.Records, fields)
			}
			printRecords(cmd.OutOrStdout(), res.Records)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by id, title, tags or summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&fields, "fields", "", "Comma-separated JSON keys to keep (with --json)")
	return cmd
}

func newModuleComposeCmd(app *App) *cobra.Command {
	var (
		c      compose.Composition
		save   bool
		fields string
	)
	cmd := &cobra.Command{
		Use:   "compose <id> <id>...",
		Short: "Compose final records into one module record",
		Long:  "Compose final records, in the order given, into one module record. The result is printed; --save stores it in the final stage.",
		Args:  cobra.MinimumNArgs(compose.MinSources),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensureSheet(); err != nil {
				return err
			}
			ctx := cmd.Context()
			mod, err := app.Builder.ComposeByID(ctx, c, args)
			if err != nil {
				return err
			}
			if save {
				if mod, err = app.Engine.Save(ctx, mod, domain.StageFinal); err != nil {
					return err
				}
				okLine(cmd.ErrOrStderr(), "saved module %s", mod.ID)
			}
			return writeOneJSON(cmd.OutOrStdout(), mod, fields)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&c.Title, "title", "", "Module title")
	fl.IntVar(&c.DurationMinutes, "duration", 0, "Session minutes")
	fl.StringVar(&c.TotalDuration, "total", "", "Total duration, free text")
	fl.StringVar(&c.Audience, "audience", "", "Audience")
	fl.StringVar(&c.Location, "location", "", "Location")
	fl.BoolVar(&save, "save", false, "Store the module in the final stage")
	fl.StringVar(&fields, "fields", "", "Comma-separated JSON keys to keep")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
