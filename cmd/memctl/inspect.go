package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/easeaico/her-memory/internal/controller"
	"github.com/easeaico/her-memory/internal/emotion"
)

func NewHistoryCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session>",
		Short: "Show persisted turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("number")
			turns, err := ctrl().ChatHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("chat history: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, turns)
			}
			for _, t := range turns {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.Role, t.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntP("number", "n", 20, "Maximum turns")
	return cmd
}

func NewCharactersCmd(ctrl func() *controller.Controller) *cobra.Command {
	return &cobra.Command{
		Use:   "characters",
		Short: "List characters and their emotional state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chars, err := ctrl().AllCharacters(cmd.Context())
			if err != nil {
				return fmt.Errorf("list characters: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, chars)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMOOD\tVALENCE\tAROUSAL\tDOMINANCE")
			for _, c := range chars {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\n", c.ID, c.Name, emotion.Mood(c.EmotionalState),
					c.EmotionalState.Valence, c.EmotionalState.Arousal, c.EmotionalState.Dominance)
			}
			return w.Flush()
		},
	}
}

func NewFactCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fact <id>",
		Short: "Show a fact with its history, or record a new value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, _ := cmd.Flags().GetString("set")
			confidence, _ := cmd.Flags().GetFloat64("confidence")

			c := ctrl()
			if value != "" {
				if _, err := c.RecordFactVersion(cmd.Context(), args[0], value, confidence); err != nil {
					return fmt.Errorf("record fact version: %w", err)
				}
			}
			fact, err := c.FactWithHistory(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get fact: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, fact)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: %s (importance %.1f)\n", fact.Entity, fact.Attribute, fact.CurrentValue, fact.ImportanceScore)
			for _, v := range fact.History {
				fmt.Fprintf(out, "  %s  %.2f  %s\n", v.Timestamp.Format("2006-01-02 15:04:05"), v.Confidence, v.Value)
			}
			return nil
		},
	}
	cmd.Flags().String("set", "", "Record a new current value")
	cmd.Flags().Float64("confidence", 0.7, "Confidence of the new value")
	return cmd
}

func NewInspectCmd(ctrl func() *controller.Controller) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show tier contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := ctrl().Inspect(cmd.Context())
			if wantJSON(cmd) {
				return outputJSON(cmd, snap)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config version  %d\n", snap.ConfigVersion)
			fmt.Fprintf(out, "L1  sessions=%d turns=%d tokens=%d\n", snap.Working.Sessions, snap.Working.Turns, snap.Working.Tokens)
			fmt.Fprintf(out, "L2  characters=%d facts=%d relationships=%d sessions=%d turns=%d\n",
				snap.Graph.Characters, snap.Graph.Facts, snap.Graph.Relationships, snap.Graph.Sessions, snap.Graph.Turns)
			fmt.Fprintf(out, "L3  fragments=%d indexed=%d accesses=%d\n", snap.Vector.Fragments, snap.Vector.IndexSize, snap.Vector.AccessCount)
			if len(snap.DegradedTiers) > 0 {
				fmt.Fprintf(out, "degraded: %v\n", snap.DegradedTiers)
			}
			return nil
		},
	}
}

func NewStatsCmd(ctrl func() *controller.Controller) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show configuration and operation statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := ctrl().Stats()
			if wantJSON(cmd) {
				return outputJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			w := st.Config.FusionWeights
			fmt.Fprintf(out, "weights  l1=%.2f l2=%.2f l3=%.2f\n", w.L1, w.L2, w.L3)
			fmt.Fprintf(out, "thresholds  significant=%.2f very_significant=%.2f\n",
				st.Config.L2SignificanceThreshold, st.Config.VerySignificantThreshold())
			fmt.Fprintf(out, "operations  total=%d failed=%d avg_ms=%.2f\n", st.Operations.Total, st.Operations.Failed, st.Operations.AvgMS)
			return nil
		},
	}
}
