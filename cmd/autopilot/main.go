package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/autopilot/pkg/bus"
	"github.com/cuemby/autopilot/pkg/config"
	"github.com/cuemby/autopilot/pkg/controlplane"
	"github.com/cuemby/autopilot/pkg/executor"
	"github.com/cuemby/autopilot/pkg/fixer"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/reasoner"
	"github.com/cuemby/autopilot/pkg/scanner"
	"github.com/cuemby/autopilot/pkg/store"
	"github.com/cuemby/autopilot/pkg/supervisor"
	"github.com/cuemby/autopilot/pkg/telemetry"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Autopilot - autonomous operator for managed container services",
	Long: `Autopilot watches a fleet of managed container services, detects
runtime anomalies against per-service thresholds, asks a generative model
for a remediation, and applies it through the platform control plane with
a full audit trail.

Two processes cooperate through a durable message bus and a document
store: the supervisor (detect and decide) and the fixer (apply and
reconcile).`,
	Version: Version,
}

var logLevel string

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Autopilot version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(supervisorCmd)
	rootCmd.AddCommand(fixerCmd)
	rootCmd.AddCommand(localCmd)
}

func initLogging() {
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: true,
	})
}

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Run the supervisor process (detect and decide)",
	Long: `Run the supervisor: scan the configured targets on a cadence,
reason about anomalies, persist incidents, and publish action envelopes
onto the bus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		tc := telemetry.NewHTTPClient(cfg.TelemetryEndpoint, cfg.TelemetryTimeout)
		cp := controlplane.NewHTTPClient(cfg.ControlPlaneEndpoint, cfg.ProjectID)
		model := reasoner.NewHTTPModelClient(cfg.ModelEndpoint, cfg.ModelName, cfg.ModelTimeout)
		pub := bus.NewHTTPPublisher(cfg.BusEndpoint, cfg.BusTopic, cfg.PublishTimeout)

		sc := scanner.New(tc, cfg)
		rs := reasoner.New(model, cp)
		sup := supervisor.New(cfg, sc, rs, st, pub)

		sched := supervisor.NewScheduler(sup, cfg.ScanInterval)
		sched.Start()
		defer sched.Stop()

		srv := supervisor.NewServer(sup, rs, st)
		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", cfg.SupervisorAddr).Msg("supervisor listening")
			errCh <- srv.Start(cfg.SupervisorAddr)
		}()

		return waitForShutdown(errCh, srv.Shutdown)
	},
}

var fixerCmd = &cobra.Command{
	Use:   "fixer",
	Short: "Run the fixer process (apply and reconcile)",
	Long: `Run the fixer: receive pushed action envelopes, mutate the
platform control plane, and write terminal incident state plus an audit
trail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}

		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		cp := controlplane.NewHTTPClient(cfg.ControlPlaneEndpoint, cfg.ProjectID)
		exec := executor.New(cp, cfg)
		fx := fixer.New(exec, st)

		if cfg.DryRun {
			log.Warn("dry run mode enabled: no control plane mutations will be applied")
		}

		srv := fixer.NewServer(fx)
		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", cfg.FixerAddr).Msg("fixer listening")
			errCh <- srv.Start(cfg.FixerAddr)
		}()

		return waitForShutdown(errCh, srv.Shutdown)
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run supervisor and fixer in one process",
	Long: `Run both halves of the pipeline in a single process, wired
through an in-memory broker instead of the durable bus. Intended for
demos and development; state still persists to the local store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()

		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		tc := telemetry.NewHTTPClient(cfg.TelemetryEndpoint, cfg.TelemetryTimeout)
		cp := controlplane.NewHTTPClient(cfg.ControlPlaneEndpoint, cfg.ProjectID)
		model := reasoner.NewHTTPModelClient(cfg.ModelEndpoint, cfg.ModelName, cfg.ModelTimeout)

		broker := bus.NewBroker()
		broker.Start()
		defer broker.Stop()

		sc := scanner.New(tc, cfg)
		rs := reasoner.New(model, cp)
		sup := supervisor.New(cfg, sc, rs, st, broker)

		exec := executor.New(cp, cfg)
		fx := fixer.New(exec, st)

		consumer := fixer.NewConsumer(fx, broker)
		consumer.Start()
		defer consumer.Stop()

		sched := supervisor.NewScheduler(sup, cfg.ScanInterval)
		sched.Start()
		defer sched.Stop()

		srv := supervisor.NewServer(sup, rs, st)
		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", cfg.SupervisorAddr).Msg("local mode listening")
			errCh <- srv.Start(cfg.SupervisorAddr)
		}()

		return waitForShutdown(errCh, srv.Shutdown)
	},
}

// waitForShutdown blocks until a signal or a server error, then runs the
// graceful shutdown with a deadline.
func waitForShutdown(errCh <-chan error, shutdown func(context.Context) error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return shutdown(ctx)
}
