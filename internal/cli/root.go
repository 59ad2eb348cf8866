package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hilo-forecaster/internal/config"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/service"
)

// Version information, overridden at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// App holds the lazily built application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger

	svc *service.App
}

// Service bootstraps the store, feed and forecaster on first use.
func (a *App) Service(ctx context.Context) (*service.App, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := service.Bootstrap(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

// Close releases resources opened by Service.
func (a *App) Close() error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	a.svc = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "forecaster",
		Short: "High/Low dice-round forecaster",
		Long: `forecaster predicts whether the next dice round totals High (11-18) or Low (3-10).

Eight sub-predictors vote on the recent history, an online logistic meta-learner adds
its own vote, and a weighted fuser combines them into one forecast with a confidence,
a risk label and a readable rationale.

Use 'forecaster <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.ConfigDir = dir
			app.Config = cfg

			lc := cfg.LogSettings()
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				lc.Level = "debug"
			}
			lc.Output = cmd.ErrOrStderr()
			app.Logger = logging.NewLoggerWithConfig(lc)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/hilo-forecaster)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("lang", "en", "rationale language (en, vi)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addForecastCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("forecaster v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the forecaster configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.TemplatePath(configDirOr(app.ConfigDir))
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	return cmd
}

func configDirOr(dir string) string {
	if dir == "" {
		return config.DefaultConfigDir()
	}
	return dir
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.Feed.Token != "" {
		c.Feed.Token = "****"
	}
	if c.Cache.RedisPassword != "" {
		c.Cache.RedisPassword = "****"
	}
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Profile:         %s\n", cfg.Engine.Profile)
	if len(cfg.Engine.Enabled) > 0 {
		output.Printf("  Enabled:         %s\n", strings.Join(cfg.Engine.Enabled, ", "))
	}
	if len(cfg.Engine.Disabled) > 0 {
		output.Printf("  Disabled:        %s\n", strings.Join(cfg.Engine.Disabled, ", "))
	}
	output.Printf("  Min history:     %d\n", cfg.Engine.MinHistory)
	output.Printf("  Meta-learner:    %v (%s lifetime)\n", cfg.Engine.UseMeta, cfg.Engine.MetaLifetime)
	output.Println()

	output.Bold("Backtest")
	output.Printf("  Lookback:        %d\n", cfg.Backtest.Lookback)
	output.Printf("  Bankroll:        %.2f\n", cfg.Backtest.InitialBankroll)
	output.Printf("  Payout:          %.2f\n", cfg.Backtest.Payout)
	output.Printf("  Max fraction:    %.2f\n", cfg.Backtest.MaxFraction)
	output.Println()

	output.Bold("Feed")
	output.Printf("  Source:          %s\n", cfg.Feed.Source)
	switch cfg.Feed.Source {
	case "http":
		output.Printf("  URL:             %s\n", cfg.Feed.URL)
		output.Printf("  Rate limit:      %.1f req/s\n", cfg.Feed.RateLimit)
	case "file":
		output.Printf("  File:            %s\n", cfg.Feed.File)
	}
	output.Printf("  Limit:           %d rounds\n", cfg.Feed.Limit)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Store:           %v (%s)\n", cfg.Store.Enabled, cfg.Store.Path)
	output.Printf("  Cache:           %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	output.Printf("  Server:          %s\n", cfg.Server.Addr)
}
