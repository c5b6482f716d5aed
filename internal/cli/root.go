// Package cli provides the stockclass command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgallion1/stockclass/internal/classapi"
	"github.com/dgallion1/stockclass/internal/config"
	"github.com/dgallion1/stockclass/internal/selection"
	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "stockclass",
		Short: "Browse and correct the stock classification taxonomy",
		Long: `stockclass drills down the macro-economic sector, sector, industry and
basic industry taxonomy served by the classification API, lists the companies
filed under a basic industry and corrects their classification.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg
			a.log = newLogger(cfg, cmd.ErrOrStderr())
			if cfg.File != "" {
				a.log.Debug("using config file", "path", cfg.File)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().String("api-base-url", "", "classification API base URL")
	rootCmd.PersistentFlags().Duration("http-timeout", 0, "timeout for classification API requests")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json|text)")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newTreeCommand(a))
	rootCmd.AddCommand(newStocksCommand(a))
	rootCmd.AddCommand(newEditCommand(a))

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newWorkflow returns a mounted workflow talking to the configured API and
// a func that releases it.
func (a *app) newWorkflow() (*workflow.Workflow, func()) {
	client := classapi.NewClient(a.cfg.APIBaseURL, a.cfg.HTTPTimeout)
	log := a.log.With("component", "workflow")
	wf := workflow.New(client, log,
		workflow.WithRefreshTimeout(a.cfg.HTTPTimeout),
		workflow.WithNotifier(func(n selection.Notification) {
			log.Debug("selection changed", "selection", n)
		}),
	)
	wf.Mount()
	return wf, func() {
		wf.Close()
		client.Close()
	}
}
