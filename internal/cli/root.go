package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/fatflowers/scentbox/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the operator CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scentctl",
		Short: "Operator tooling for the scentbox backend",
		Long:  "Run fulfillment scans, migrations and catalog syncs against the configured database without starting the HTTP server.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print dependency injection events")

	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSyncCatalogCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// withApp starts the platform and domain services, runs fn and stops everything again.
// targets are fx.Populate pointers filled before fn runs.
func withApp(ctx context.Context, opts *RootOptions, fn func(ctx context.Context) error, targets ...interface{}) error {
	options := []fx.Option{app.Platform, app.Services, fx.Populate(targets...)}
	if !opts.Verbose {
		options = append(options, fx.NopLogger)
	}
	a := fx.New(options...)
	if err := a.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	runErr := fn(ctx)

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
