package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/docket-crawler/internal/config"
	"github.com/JakeFAU/docket-crawler/internal/pipeline"
	"github.com/JakeFAU/docket-crawler/internal/server"
)

// App is the application surface the commands use, so tests can substitute
// a fake.
type App interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context, query string) (*pipeline.Run, error)
	Close(ctx context.Context) error
}

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// closeTimeout bounds the flush of progress sinks and telemetry on exit.
const closeTimeout = 10 * time.Second

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "docketcrawler",
		Short: "Searches e-SAJ court portals by party name.",
		Long: `docketcrawler searches the public e-SAJ portals of Brazilian state courts
for lawsuits involving a party, reads every matching case page and exports
the results as CSV files.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newServeCmd(), newSearchCmd())
	return cmd
}

// withApp runs fn against the application built by PersistentPreRunE and
// closes it afterwards, whether or not fn fails.
func withApp(cmd *cobra.Command, fn func(App) error) (err error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = errors.Join(err, appInstance.Close(ctx))
	}()
	return fn(appInstance)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
