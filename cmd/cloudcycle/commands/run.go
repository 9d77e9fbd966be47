package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudcycle/cloudcycle/pkg/config"
	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/policy"
	"github.com/cloudcycle/cloudcycle/pkg/providers"
	"github.com/cloudcycle/cloudcycle/pkg/providers/memory"
	"github.com/cloudcycle/cloudcycle/pkg/stores"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newRunCommand(version string) *cobra.Command {
	var (
		provider    string
		ledgerPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision, verify, exercise and tear down the configured resources",
		Long: `Run a full lifecycle: provision every configured resource, wait until each
is ready, upload the file, send, count and receive a message, re-verify, then
terminate everything and confirm each termination.

The exit code is 0 only when the run reaches verified_torn_down with no
failed teardown. Interrupting the run tears down whatever was created.`,
		Example: `  # Run against AWS with a dotenv config
  cloudcycle run --config .env

  # Dry run against the in-memory provider, recording history
  cloudcycle run --config .env --provider memory --ledger cloudcycle.db

  # Print the report as JSON
  cloudcycle run --config cloudcycle.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Provider = provider
			}
			if ledgerPath != "" {
				cfg.Run.LedgerPath = ledgerPath
			}
			if metricsAddr != "" {
				cfg.Telemetry.Metrics.ListenAddress = metricsAddr
			}
			cfg.Telemetry.ServiceVersion = version

			report, err := runLifecycle(ctx, cfg)
			if err != nil {
				return err
			}

			if err := printReport(cmd.OutOrStdout(), report, jsonOutput); err != nil {
				return err
			}
			if code := report.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider to run against (aws, memory)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite run ledger path")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address during the run")

	return cmd
}

// runLifecycle wires telemetry, the ledger, the policy gate and the adapter
// around an orchestrator and runs it.
func runLifecycle(ctx context.Context, cfg *config.Config) (*engine.Report, error) {
	tel, err := telemetry.NewTelemetry(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	// The ledger subscribes to events, so it closes only after the publisher drains.
	var ledger *stores.SQLiteStore
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
		if ledger != nil {
			if err := ledger.Close(); err != nil {
				log.Warn().Err(err).Msg("Ledger close failed")
			}
		}
	}()
	tel.StartMetricsServer()
	logger := tel.Logger
	ctx = tel.WithContext(ctx)

	opts := cfg.EngineOptions()
	opts.Events = tel.Events
	opts.Metrics = tel.Metrics
	opts.Tracer = tel.Tracer
	opts.Logger = logger

	if cfg.Run.LedgerPath != "" {
		ledger, err = stores.Open(ctx, cfg.Run.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		opts.Ledger = ledger
		tel.Events.Subscribe(ledger.EventSubscriber(logger), nil)
	}

	gate, err := newPolicyEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts.Preflight = gate

	adapter, err := providers.Default().New(ctx, cfg.Provider, providers.Settings{
		Region:          cfg.Region,
		AccessKeyID:     cfg.Credentials.AccessKeyID,
		SecretAccessKey: cfg.Credentials.SecretAccessKey,
		SessionToken:    cfg.Credentials.SessionToken,
		Endpoint:        cfg.Credentials.Endpoint,
		Memory: memory.Options{
			PollsBeforeReady: 1,
			PollsBeforeGone:  1,
			ReadFiles:        true,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	adapter = providers.Instrument(adapter, cfg.Provider, tel.Tracer)

	orch := engine.NewOrchestrator(adapter, cfg.RunSpec(time.Now()), opts)
	logger.WithRunID(orch.RunID()).
		WithProvider(cfg.Provider).
		WithField("region", cfg.Region).
		WithField("kinds", cfg.Kinds).
		Info("starting run")

	return orch.Run(ctx)
}

// newPolicyEngine builds the policy gate with the built-ins and any policies
// from the configured directory, minus the disabled ones.
func newPolicyEngine(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*policy.Engine, error) {
	gate, err := policy.NewEngine(logger.Zerolog(),
		policy.WithEnvironment(cfg.Telemetry.Environment),
		policy.WithProvider(cfg.Provider),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Run.PolicyDir != "" {
		if err := gate.LoadPolicies(ctx, []string{cfg.Run.PolicyDir}); err != nil {
			return nil, err
		}
	}
	if err := disablePolicies(gate, cfg.Run.DisabledPolicies); err != nil {
		return nil, err
	}
	return gate, nil
}

func disablePolicies(gate *policy.Engine, names []string) error {
	for _, name := range names {
		if err := gate.DisablePolicy(name); err != nil {
			return fmt.Errorf("cannot disable policy: %w", err)
		}
	}
	return nil
}
