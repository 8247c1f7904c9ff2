package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the top-level "workbench" command and registers all
// subcommands against app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "workbench",
		Short:         "Plan courses from the tool catalog and move them through idea, draft and final",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "YAML config file (default $WORKBENCH_CONFIG)")

	root.AddCommand(
		newPingCmd(app),
		newCatalogCmd(app),
		newCourseCmd(app),
		newModuleCmd(app),
		newExportCmd(app),
		newCacheCmd(app),
		newFakeSheetCmd(),
	)
	return root
}

func newPingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the course API answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensureSheet(); err != nil {
				return err
			}
			if err := app.Client.Ping(cmd.Context()); err != nil {
				return err
			}
			okLine(cmd.OutOrStdout(), "course API reachable")
			return nil
		},
	}
}
