package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hostkeeper/internal/config"
	"hostkeeper/internal/notify"
	"hostkeeper/internal/run"
)

var (
	cfgPath string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hostkeeper",
	Short: "hostkeeper - unattended GreatHost free-tier renewal",
	Long: `hostkeeper keeps a GreatHost free-tier server alive: it verifies the
network egress identity, logs into the panel through a real browser, decides
whether the renewal cooldown has elapsed, attempts the renewal, and reports
the outcome over Telegram.

Designed for a fixed schedule (cron/systemd timer): every run is independent,
sends exactly one notification, and exits 0 regardless of verdict so the
scheduler never has to interpret exit codes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one renewal pass and notify the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidated()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		verdict := run.New(cfg, logger).Run(ctx)
		logger.Info("pass finished", zap.String("verdict", string(verdict)))
		// Unattended runs complete normally on every verdict; the
		// notification already carries the outcome.
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Read-only eligibility probe, no renewal and no notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidated()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		elig, err := run.New(cfg, logger).DryRun(ctx)
		if err != nil {
			return err
		}
		if elig.WaitHint != "" {
			fmt.Printf("%s (wait %s)\n", elig.State, elig.WaitHint)
		} else {
			fmt.Println(elig.State)
		}
		return nil
	},
}

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test notification over the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		env := notify.NewEnvelope(notify.KindChannelTest, []notify.Field{
			{Emoji: "🧪", Label: "Test", Value: "hostkeeper notification channel check"},
		}, time.Now(), loc)
		notify.NewDispatcher(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger).Dispatch(ctx, env)
		return nil
	},
}

func loadValidated() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "hostkeeper.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(notifyTestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
