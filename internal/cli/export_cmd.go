package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"course-workbench/internal/domain"
	"course-workbench/internal/export"
	"course-workbench/internal/sftpclient"
)

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records as sheet rows or writing prompts",
	}
	cmd.AddCommand(newExportTSVCmd(app), newExportPromptCmd(app))
	return cmd
}

func newExportTSVCmd(app *App) *cobra.Command {
	var (
		outPath    string
		query      string
		uploadSFTP bool
	)
	cmd := &cobra.Command{
		Use:   "tsv <stage>",
		Short: "Write a stage as a TSV file, optionally uploading it over SFTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensure(); err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := app.Engine.List(ctx, stage, query)
			if err != nil {
				return err
			}
			if res.Stale {
				warnLine(cmd.ErrOrStderr(), "course API unreachable (%v); exporting cached %s list", res.Cause, stage)
			}

			if outPath == "" {
				outPath = export.FileName(stage, app.Now())
			}
			if err := export.WriteTSVFile(outPath, res.Records); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			okLine(out, "wrote %d records to %s", len(res.Records), outPath)

			if !uploadSFTP {
				return nil
			}
			upCfg := sftpConfig(app)
			remoteName := filepath.Base(outPath)
			upCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			if err := sftpclient.UploadFile(upCtx, upCfg, outPath, remoteName); err != nil {
				return fmt.Errorf("sftp upload: %w", err)
			}
			okLine(out, "uploaded to sftp://%s%s/%s", upCfg.Addr(), upCfg.RemoteDir, remoteName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default courses-<stage>-YYYYMMDD.tsv)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only records matching this filter")
	cmd.Flags().BoolVar(&uploadSFTP, "sftp", false, "Upload the file with the SFTP_* settings")
	return cmd
}

func sftpConfig(app *App) sftpclient.Config {
	c := app.Config
	return sftpclient.Config{
		Host:                  c.SFTPHost,
		Port:                  c.SFTPPort,
		User:                  c.SFTPUser,
		Pass:                  c.SFTPPass,
		RemoteDir:             c.SFTPDir,
		KnownHostsPath:        c.SFTPKnownHosts,
		InsecureIgnoreHostKey: c.SFTPInsecureIgnoreHostKey,
	}
}

func newExportPromptCmd(app *App) *cobra.Command {
	var proposal bool
	cmd := &cobra.Command{
		Use:   "prompt <stage> <id>",
		Short: "Print the planning prompt (or proposal) for a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensure(); err != nil {
				return err
			}
			rec, err := app.Engine.Get(cmd.Context(), stage, args[1])
			if err != nil {
				return err
			}
			text := export.Prompt(rec)
			if proposal {
				text = export.Proposal(rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&proposal, "proposal", false, "Print the short proposal instead")
	return cmd
}
