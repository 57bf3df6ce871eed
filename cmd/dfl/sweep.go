package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/config"
	"github.com/dealflowhq/dealflow/internal/escalation"
	"github.com/dealflowhq/dealflow/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the escalation sweep over overdue work items",
	Long: `Evaluate overdue tasks, open conflicts, and unanswered distribution
recipients against the escalation policy, notifying the derived recipients.

Runs once by default; --watch keeps sweeping on an interval and hot-reloads
the policy file when it changes.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		policyPath, _ := cmd.Flags().GetString("policy")

		if interval == 0 {
			interval = config.GetDuration(config.KeySweepInterval)
		}
		if policyPath == "" {
			policyPath = config.GetString(config.KeyEscalationPolicy)
		}

		policy := escalation.DefaultPolicy()
		if policyPath != "" {
			loaded, err := escalation.LoadPolicy(policyPath)
			if err != nil {
				return err
			}
			policy = loaded
		}

		quiet, err := sweep.ParseQuietHours(config.GetStringMapString(config.KeySweepQuietHours))
		if err != nil {
			return err
		}

		sweeper := sweep.New(store, newNotifier(), policy,
			sweep.WithInterval(interval),
			sweep.WithManagers(config.GetStringSlice(config.KeySweepManagers)),
			sweep.WithQuietHours(quiet),
		)

		if !watch {
			summary, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(summary)
				return nil
			}
			fmt.Printf("evaluated %d, escalated %d, suppressed %d, errors %d\n",
				summary.Evaluated, summary.Escalated, summary.Suppressed, summary.Errors)
			return nil
		}

		ctx := cmd.Context()
		if policyPath != "" {
			go func() {
				if err := sweeper.WatchPolicy(ctx, policyPath); err != nil && !errors.Is(err, context.Canceled) {
					fmt.Printf("policy watcher stopped: %v\n", err)
				}
			}()
		}
		err = sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	sweepCmd.Flags().Bool("watch", false, "Keep sweeping on an interval")
	sweepCmd.Flags().Duration("interval", 0, "Sweep interval in watch mode (default: config sweep.interval)")
	sweepCmd.Flags().String("policy", "", "Escalation policy YAML (default: config escalation.policy-path or built-in)")

	rootCmd.AddCommand(sweepCmd)
}
