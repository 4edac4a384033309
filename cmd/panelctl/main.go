// Command panelctl is the operator CLI: database migrations, API tokens
// and manual processing of recorded panel changes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lalith-99/panelwatch/internal/app"
	"github.com/lalith-99/panelwatch/internal/config"
	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries what PersistentPreRunE loaded to the subcommands.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "panelctl",
		Short:         "Operate a panelwatch deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", os.Getenv(config.EnvConfigFile), "YAML config file")
	flags.String("env", "", "environment (development, production)")
	flags.String("log-level", "", "log level")
	flags.String("store", "", "store backend (postgres, memory)")
	flags.String("database-url", "", "Postgres connection URL")
	flags.String("jwt-secret", "", "HMAC secret for API tokens")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, _ := flags.GetString("config")
		cfg, err := config.Load(path, flags)
		if err != nil {
			return err
		}
		logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		c.cfg, c.logger = cfg, logger
		return nil
	}
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if c.logger != nil {
			_ = c.logger.Sync()
		}
	}

	root.AddCommand(
		c.migrateCmd(),
		c.tokenCmd(),
		c.replayCmd(),
		c.classifyCmd(),
		c.sweepCmd(),
	)
	return root
}

// open builds the services. Changes are always processed in this process,
// so the dispatch backend is not connected.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg := *c.cfg
	cfg.Dispatch.Mode = config.DispatchInline
	return app.New(ctx, &cfg, c.logger)
}
