package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cuemby/brokerfleet/pkg/client"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect and steer the rollout plan",
	Long: `Inspect and steer the rollout plan of a running brokerfleet.

Examples:
  brokerfleet plan status
  brokerfleet plan summary -o yaml
  brokerfleet plan restart PHASE_ID UNIT_ID
  brokerfleet plan interrupt`,
}

func init() {
	planCmd.PersistentFlags().String("api", "localhost:8080", "Plan API address")
	planCmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json or yaml")

	planCmd.AddCommand(planStatusCmd)
	planCmd.AddCommand(planSummaryCmd)
	planCmd.AddCommand(planPhasesCmd)
	planCmd.AddCommand(planPhaseCmd)
	planCmd.AddCommand(unitCommand("restart", plan.CmdRestart, "Send a broker back to PENDING so it is redeployed"))
	planCmd.AddCommand(unitCommand("force-complete", plan.CmdForceComplete, "Kill a broker's task and forget it"))
	planCmd.AddCommand(planCommand("continue", plan.CmdContinue, "Resume an interrupted rollout"))
	planCmd.AddCommand(planCommand("interrupt", plan.CmdInterrupt, "Pause the rollout before the next broker"))
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("api")
	return client.NewClient(addr)
}

// printOutput writes v in the requested format. Text falls back to text(),
// or to YAML when text is nil.
func printOutput(cmd *cobra.Command, v any, text func(io.Writer)) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(w, v)
	case "text", "":
		if text == nil {
			return writeYAML(w, v)
		}
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// writeYAML goes through JSON so field names match the API
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

var planStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the plan status and the current phase and broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		status, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		return printOutput(cmd, status, func(w io.Writer) {
			if status.Plan != nil {
				fmt.Fprintf(w, "Plan:   %s (%d phases)\n", status.Plan.Status, status.Plan.PhaseCount)
			}
			if status.Phase != nil {
				fmt.Fprintf(w, "Phase:  %s [%s] %s\n", status.Phase.Name, status.Phase.ID, status.Phase.Status)
			}
			if status.Block != nil {
				fmt.Fprintf(w, "Broker: %s [%s] %s\n", status.Block.Name, status.Block.ID, status.Block.Status)
			} else {
				fmt.Fprintln(w, "Broker: none, rollout complete")
			}
		})
	},
}

var planSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show every phase and broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		summary, err := c.Summary(cmd.Context())
		if err != nil {
			return err
		}

		return printOutput(cmd, summary, func(w io.Writer) {
			fmt.Fprintf(w, "Plan: %s\n", summary.Status)
			for _, ph := range summary.Phases {
				fmt.Fprintf(w, "  %s [%s] %s\n", ph.Name, ph.ID, ph.Status)
				for _, b := range ph.Blocks {
					decide := ""
					if b.Decide {
						decide = " (needs approval)"
					}
					fmt.Fprintf(w, "    %-12s %-12s %s%s\n", b.Name, b.Status, b.ID, decide)
				}
			}
		})
	},
}

var planPhasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List phase ids and names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		list, err := c.Phases(cmd.Context())
		if err != nil {
			return err
		}

		return printOutput(cmd, list, func(w io.Writer) {
			for _, entry := range list.Phases {
				for id, name := range entry {
					fmt.Fprintf(w, "%s  %s\n", id, name)
				}
			}
		})
	},
}

var planPhaseCmd = &cobra.Command{
	Use:   "phase PHASE_ID",
	Short: "List the brokers of one phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		list, err := c.Phase(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return printOutput(cmd, list, func(w io.Writer) {
			for _, entry := range list.Blocks {
				ids := make([]string, 0, len(entry))
				for id := range entry {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(w, "%-12s %-12s %s\n", entry[id].Name, entry[id].Status, id)
				}
			}
		})
	},
}

func unitCommand(use string, cmdName plan.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " PHASE_ID UNIT_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := c.UnitCommand(cmd.Context(), args[0], args[1], cmdName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", result)
			return nil
		},
	}
}

func planCommand(use string, cmdName plan.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := c.PlanCommand(cmd.Context(), cmdName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", result)
			return nil
		},
	}
}
