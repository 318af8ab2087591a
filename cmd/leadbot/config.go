package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/app"
	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/model"
)

var configApplyFile string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Validate the config file and inspect or change the stored agent
configuration. The file seeds the stored row on first start; afterwards the
row is changed with "config set" or "config apply" and survives restarts.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.LoadEnvOptional(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return validationError(errs)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid\n", path)
		return nil
	},
}

// configShowCmd prints the effective file configuration with secrets masked.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		masked := cfg.Masked()
		return render(cmd.OutOrStdout(), masked, func(w io.Writer) error {
			return toml.NewEncoder(w).Encode(masked)
		})
	},
}

// configAgentCmd prints the stored agent configuration.
var configAgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Print the stored agent configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Runner().Status(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), st.Config, agentConfigText(st.Config))
		})
	},
}

// configSetCmd patches the stored agent configuration from key=value pairs.
var configSetCmd = &cobra.Command{
	Use:   "set key=value [key=value...]",
	Short: "Change stored agent settings",
	Long: `Change stored agent settings. Values are YAML scalars, lists use
brackets:

  leadbot config set daily_email_limit=80 business_hours_end=18:00
  leadbot config set active_days=[1,2,3,4,5] safety_window_duration=1h

The update is validated as a whole and rejected without changes when any
value is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromPairs(args)
		if err != nil {
			return err
		}
		return applyPatch(cmd, patch)
	},
}

// configApplyCmd patches the stored agent configuration from a YAML or JSON file.
var configApplyCmd = &cobra.Command{
	Use:   "apply -f patch.yaml",
	Short: "Change stored agent settings from a YAML or JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if configApplyFile == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(configApplyFile)
		}
		if err != nil {
			return fmt.Errorf("failed to read patch: %w", err)
		}
		patch, err := decodePatch(data)
		if err != nil {
			return err
		}
		return applyPatch(cmd, patch)
	},
}

func init() {
	configApplyCmd.Flags().StringVarP(&configApplyFile, "file", "f", "", "Patch file, - for stdin")
	_ = configApplyCmd.MarkFlagRequired("file")

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configAgentCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configApplyCmd)
}

// decodePatch reads a partial agent config. JSON is a subset of YAML, so
// one decoder serves both. Unknown keys are rejected.
func decodePatch(data []byte) (agent.ConfigPatch, error) {
	var patch agent.ConfigPatch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&patch); err != nil {
		if errors.Is(err, io.EOF) {
			return patch, errors.New("patch is empty")
		}
		return patch, fmt.Errorf("failed to parse patch: %w", err)
	}
	return patch, nil
}

// patchFromPairs turns key=value arguments into a patch.
func patchFromPairs(pairs []string) (agent.ConfigPatch, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.TrimSpace(raw) == "" {
			return agent.ConfigPatch{}, fmt.Errorf("invalid setting %q, expected key=value", pair)
		}
		var value yaml.Node
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return agent.ConfigPatch{}, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if len(value.Content) == 0 {
			return agent.ConfigPatch{}, fmt.Errorf("invalid value for %s", key)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			value.Content[0])
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return agent.ConfigPatch{}, err
	}
	return decodePatch(data)
}

func applyPatch(cmd *cobra.Command, patch agent.ConfigPatch) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		cfg, err := a.Runner().UpdateConfig(ctx, patch)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), cfg, agentConfigText(cfg))
	})
}

func agentConfigText(cfg model.AgentConfig) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "state\t%s\n", cfg.RunState())
		fmt.Fprintf(tw, "daily_email_limit\t%d\n", cfg.DailyEmailLimit)
		fmt.Fprintf(tw, "hourly_email_limit\t%d\n", cfg.HourlyEmailLimit)
		fmt.Fprintf(tw, "business_hours\t%s-%s %s\n", cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.Timezone)
		fmt.Fprintf(tw, "active_days\t%s\n", model.FormatDays(cfg.ActiveDays))
		fmt.Fprintf(tw, "respect_business_hours\t%t\n", cfg.RespectBusinessHours)
		fmt.Fprintf(tw, "error_rate_threshold\t%g\n", cfg.ErrorRateThreshold)
		fmt.Fprintf(tw, "safety_window\t%d outcomes / %s (min %d)\n",
			cfg.SafetyWindowSize, cfg.SafetyWindowDuration, cfg.SafetyMinOutcomes)
		fmt.Fprintf(tw, "pause_on_high_error_rate\t%t\n", cfg.PauseOnHighErrorRate)
		fmt.Fprintf(tw, "agent_check_interval\t%s\n", cfg.AgentCheckInterval)
		fmt.Fprintf(tw, "inbox_check_interval\t%s\n", cfg.InboxCheckInterval)
		fmt.Fprintf(tw, "batch_size\t%d\n", cfg.BatchSize)
		fmt.Fprintf(tw, "max_lead_errors\t%d\n", cfg.MaxLeadErrors)
		return tw.Flush()
	}
}
