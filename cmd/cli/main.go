package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/elgrid/internal/app"
	"github.com/vk/elgrid/internal/cli"
	"github.com/vk/elgrid/internal/hcl"
	"github.com/vk/elgrid/internal/variables"
	"github.com/vk/elgrid/modules"
)

// main is the entrypoint for the elgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if err := variables.LoadDotEnv(inv.EnvFile); err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}

	// The app panics on critical config errors, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	loader := hcl.NewLoader(modules.Manifests())
	elgridApp := app.NewApp(outW, inv.Config, loader)

	if inv.Command == cli.CommandValidate {
		graph, err := elgridApp.Build(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(outW, "Grid is valid: %d nodes.\n", len(graph.Nodes))
		return nil
	}
	return elgridApp.Run(ctx)
}
