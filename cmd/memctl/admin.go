package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easeaico/her-memory/internal/controller"
)

func NewPruneCmd(ctrl func() *controller.Controller) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Trim vector memory to the configured fragment cap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := ctrl().Prune(cmd.Context())
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, map[string]any{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d fragments\n", len(removed))
			return nil
		},
	}
}

func NewEstimateCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the token cost of a query without retrieving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			raw, _ := cmd.Flags().GetFloat64Slice("weights")
			weights, err := parseWeights(raw)
			if err != nil {
				return err
			}
			est, err := ctrl().EstimateTokenCost(cmd.Context(), session, weights)
			if err != nil {
				return fmt.Errorf("estimate: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, est)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "l1=%d l2=%d l3=%d total=%d\n", est.L1, est.L2, est.L3, est.Total)
			return nil
		},
	}
	cmd.Flags().String("session", "default", "Session id")
	cmd.Flags().Float64Slice("weights", nil, "Fusion weights as l1,l2,l3")
	return cmd
}

func NewMaintainCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Reap idle sessions and prune fragments",
		Long:  `Run one maintenance pass, or keep running on an interval with --watch until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			interval, _ := cmd.Flags().GetDuration("interval")

			c := ctrl()
			if watch {
				c.RunMaintenance(cmd.Context(), interval)
				return nil
			}
			report := c.Maintain(cmd.Context())
			if report.Err != nil {
				return fmt.Errorf("maintenance: %w", report.Err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sessions cleared %d, fragments removed %d\n", report.SessionsCleared, len(report.FragmentsRemoved))
			return nil
		},
	}
	cmd.Flags().Bool("watch", false, "Keep running until interrupted")
	cmd.Flags().Duration("interval", 0, "Interval between passes (default from config)")
	return cmd
}
