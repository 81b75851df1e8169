package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easeaico/her-memory/internal/controller"
	"github.com/easeaico/her-memory/internal/prompt"
	"github.com/easeaico/her-memory/internal/types"
)

func NewQueryCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve fused context for a query",
		Args:  cobra.ExactArgs(1),
		RunE:  makeQueryRunner(ctrl),
	}

	cmd.Flags().String("session", "default", "Session id")
	cmd.Flags().String("scope", "", "Narrow graph and vector results to one entity")
	cmd.Flags().Bool("auto-weights", false, "Re-bias weights by query type")
	cmd.Flags().Float64Slice("weights", nil, "Fusion weights as l1,l2,l3")
	cmd.Flags().Bool("render", false, "Print the result as a model context block")
	return cmd
}

func makeQueryRunner(ctrl func() *controller.Controller) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		scope, _ := cmd.Flags().GetString("scope")
		auto, _ := cmd.Flags().GetBool("auto-weights")
		raw, _ := cmd.Flags().GetFloat64Slice("weights")
		render, _ := cmd.Flags().GetBool("render")

		weights, err := parseWeights(raw)
		if err != nil {
			return err
		}

		res, err := ctrl().RetrieveRelevantContext(cmd.Context(), controller.RetrieveRequest{
			SessionID:   session,
			Query:       args[0],
			EntityScope: scope,
			Weights:     weights,
			AutoWeights: auto,
		})
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}

		if render {
			text, err := prompt.NewBuilder(ctrl().Config().L1MaxTurns).Render(prompt.BuildContext{Query: args[0], Result: res})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}
		if wantJSON(cmd) {
			return outputJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "final=%.4f weighted=%.4f importance=%.4f decay=%.4f tokens=%d\n",
			res.FinalScore, res.WeightedScore, res.ImportanceFactor, res.DecayFactor, res.TotalTokens)
		if len(res.DegradedTiers) > 0 {
			fmt.Fprintf(out, "degraded: %v\n", res.DegradedTiers)
		}
		for _, item := range res.Items {
			fmt.Fprintf(out, "%.4f  %s  %s\n", item.Score, item.Tier, item.Text)
		}
		return nil
	}
}

func parseWeights(raw []float64) (*types.FusionWeights, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("--weights takes exactly three values, got %d", len(raw))
	}
	return &types.FusionWeights{L1: raw[0], L2: raw[1], L3: raw[2]}, nil
}
