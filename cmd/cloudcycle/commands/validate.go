package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudcycle/cloudcycle/pkg/config"
	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/policy"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and policies without provisioning",
		Long: `Load and validate the configuration, build the run spec and evaluate it
against the built-in policies and any policies in the configured policy
directory. Nothing is provisioned.

With --watch, policies are re-evaluated whenever a file in the policy
directory changes.`,
		Example: `  # Validate a dotenv config
  cloudcycle validate --config .env

  # Re-check while editing policies
  cloudcycle validate --config cloudcycle.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
			if err != nil {
				return err
			}
			gate, err := newPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}

			spec := cfg.RunSpec(time.Now())
			result, err := gate.Evaluate(ctx, spec)
			if err != nil {
				return err
			}
			if err := printValidation(out, cfg, gate, result, jsonOutput); err != nil {
				return err
			}

			if !watch {
				if !result.Allowed {
					return &ExitError{Code: 1}
				}
				return nil
			}

			if cfg.Run.PolicyDir == "" {
				return fmt.Errorf("--watch needs a policy directory (POLICY_DIR)")
			}
			return watchPolicies(ctx, out, cfg, gate, spec, logger)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-evaluate when policy files change")

	return cmd
}

// watchPolicies re-evaluates spec after every policy reload until ctx is done.
func watchPolicies(ctx context.Context, out io.Writer, cfg *config.Config, gate *policy.Engine, spec engine.RunSpec, logger *telemetry.Logger) error {
	loader := policy.NewLoader(logger.Zerolog())
	err := loader.Watch(ctx, []string{cfg.Run.PolicyDir}, func(policies []policy.Policy) error {
		if err := gate.ReplacePolicies(ctx, policies); err != nil {
			return err
		}
		if err := disablePolicies(gate, cfg.Run.DisabledPolicies); err != nil {
			return err
		}
		result, err := gate.Evaluate(ctx, spec)
		if err != nil {
			return err
		}
		return printValidation(out, cfg, gate, result, jsonOutput)
	})
	if err != nil {
		return err
	}

	log.Info().Str("dir", cfg.Run.PolicyDir).Msg("Watching policies, press Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

func printValidation(w io.Writer, cfg *config.Config, gate *policy.Engine, result *policy.Result, asJSON bool) error {
	var disabled []string
	for _, p := range gate.ListPolicies() {
		if !p.Enabled {
			disabled = append(disabled, p.Name)
		}
	}

	if asJSON {
		return writeJSON(w, struct {
			Config   config.Config  `json:"config"`
			Policy   *policy.Result `json:"policy"`
			Disabled []string       `json:"disabled_policies,omitempty"`
		}{cfg.Redacted(), result, disabled})
	}

	fmt.Fprintf(w, "Config OK: provider=%s region=%s kinds=%v\n", cfg.Provider, cfg.Region, cfg.Kinds)
	fmt.Fprintf(w, "Evaluated %d policies in %s\n", len(result.EvaluatedPolicies), result.Duration.Round(time.Microsecond))
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  DENY  %s [%s]\n", v, v.Severity)
	}
	for _, v := range result.Warnings {
		fmt.Fprintf(w, "  WARN  %s [%s]\n", v, v.Severity)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  ERROR %s\n", e)
	}
	for _, name := range disabled {
		fmt.Fprintf(w, "  OFF   %s\n", name)
	}
	if result.Allowed {
		fmt.Fprintln(w, "Policy check passed")
	} else {
		fmt.Fprintln(w, "Policy check failed")
	}
	return nil
}
