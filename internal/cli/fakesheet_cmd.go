package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"course-workbench/internal/logging"
	"course-workbench/internal/sheetfake"
)

func newFakeSheetCmd() *cobra.Command {
	var (
		addr      string
		toolsPath string
		logLevel  string
	)
	cmd := &cobra.Command{
		Use:   "fake-sheet",
		Short: "Serve a local in-memory course API for offline work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("development", logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			fake := sheetfake.New(sheetfake.WithLogger(logger.Named("fake-sheet")))
			if toolsPath != "" {
				body, err := os.ReadFile(toolsPath)
				if err != nil {
					return fmt.Errorf("read tools: %w", err)
				}
				fake.SetTools(body)
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           fake.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			okLine(cmd.OutOrStdout(), "serving http://%s%s", ln.Addr(), sheetfake.Path)
			return serveUntilDone(cmd.Context(), srv, ln, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "Listen address")
	cmd.Flags().StringVar(&toolsPath, "tools", "", "File served as the tool catalog (JSON or TSV)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
