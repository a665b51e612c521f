// Package cmd defines the CLI commands of the classichero executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/app"
	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/collector"
	"github.com/classic-hero/classichero/internal/config"
	"github.com/classic-hero/classichero/internal/merge"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows us to inject a mock app during tests.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Collect(ctx context.Context, heroes []book.Hero) (collector.Result, error)
	Merge(mode string) (merge.Result, error)
	Search(ctx context.Context, author string, limit int) ([]book.Metadata, error)
	Serve(ctx context.Context) error
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cfg)
}

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "classichero",
		Short: "Collects public-domain books for the Classic Hero reading app.",
		Long: `classichero pulls books from Project Gutenberg, cleans and splits them into
chapters, and writes the collected records for the Classic Hero catalog.
It also merges collected books into the served dataset and serves the
catalog over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application after flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	executed, err := root.ExecuteContextC(ctx)
	closeApp(executed)
	if err == nil {
		return collector.ExitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return collector.ExitFailure
}

// closeApp shuts down the services built for the executed command, whether
// or not it succeeded.
func closeApp(executed *cobra.Command) {
	if executed == nil || executed.Context() == nil {
		return
	}
	if appInstance, ok := executed.Context().Value(appKey).(App); ok && appInstance != nil {
		appInstance.Close()
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
