package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easeaico/her-memory/internal/controller"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "memctl",
		Short:         "Multi-tier conversational memory",
		Long:          `Ingest conversation turns into working, graph and vector memory and query the fused context.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	if a != nil {
		rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("MEMORY_CONFIG_FILE", path); err != nil {
					return err
				}
			}
			level, _ := cmd.Flags().GetString("log-level")
			return a.open(cmd.Context(), level)
		}
		rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
			a.close()
		}
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "YAML configuration file")
	cmd.PersistentFlags().String("log-level", envOr("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command, a *app) {
	ctrl := func() *controller.Controller { return a.ctrl }

	root.AddCommand(
		NewIngestCmd(ctrl),
		NewQueryCmd(ctrl),
		NewHistoryCmd(ctrl),
		NewCharactersCmd(ctrl),
		NewFactCmd(ctrl),
		NewInspectCmd(ctrl),
		NewStatsCmd(ctrl),
		NewPruneCmd(ctrl),
		NewEstimateCmd(ctrl),
		NewMaintainCmd(ctrl),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func wantJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}
