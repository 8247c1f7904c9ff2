package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"course-workbench/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{}
	defer func() { _ = app.Close() }()

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
