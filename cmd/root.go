// Package cmd defines and implements the CLI commands for the sitepoke executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepoke/internal/app"
	"github.com/JakeFAU/sitepoke/internal/config"
	"github.com/JakeFAU/sitepoke/internal/logging"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// needsApp marks commands that run against the initialized services.
const needsApp = "needs-app"

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Scan(ctx context.Context, seed string) (app.Result, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger, logging.NewConsole(nil))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitepoke",
		Short: "Crawl one site and report how every URL it references responds.",
		Long: `sitepoke starts at a seed URL, renders every same-site page in a headless
browser, checks every asset and external link with a lightweight request, and
writes a report of status codes and failures.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[needsApp] == "" {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
	cmd.AddCommand(newScanCmd(), newVersionCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. The first SIGINT or SIGTERM aborts the
// scan cooperatively; a second one terminates the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger, logErr := logging.New(true)
		if logErr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
