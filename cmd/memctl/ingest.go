package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/her-memory/internal/controller"
	"github.com/easeaico/her-memory/internal/types"
)

func NewIngestCmd(ctrl func() *controller.Controller) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [content]",
		Short: "Ingest conversation turns",
		Long: `Ingest a single turn given as an argument, or a JSON Lines file of turns
({"session_id": "...", "role": "user", "content": "...", "entity_id": "..."}).`,
		Args: cobra.MaximumNArgs(1),
		RunE: makeIngestRunner(ctrl),
	}

	cmd.Flags().String("session", "default", "Session id for a single turn")
	cmd.Flags().String("role", string(types.RoleUser), "Speaker role (user|assistant|system)")
	cmd.Flags().String("entity", "", "Character that spoke the turn")
	cmd.Flags().StringP("file", "f", "", "JSON Lines file of turns, - for stdin")
	return cmd
}

func makeIngestRunner(ctrl func() *controller.Controller) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var reqs []controller.IngestRequest
		switch {
		case file != "":
			loaded, err := loadTurns(cmd, file)
			if err != nil {
				return err
			}
			reqs = loaded
		case len(args) == 1:
			session, _ := cmd.Flags().GetString("session")
			role, _ := cmd.Flags().GetString("role")
			entity, _ := cmd.Flags().GetString("entity")
			reqs = []controller.IngestRequest{{SessionID: session, Role: types.Role(role), Content: args[0], EntityID: entity}}
		default:
			return fmt.Errorf("either content or --file is required")
		}

		results := make([]controller.IngestResult, 0, len(reqs))
		failed := 0
		for _, req := range reqs {
			res := ctrl().IngestConversationTurn(cmd.Context(), req)
			if !res.Success {
				failed++
			}
			results = append(results, res)
		}

		if wantJSON(cmd) {
			if err := outputJSON(cmd, results); err != nil {
				return err
			}
		} else {
			for _, res := range results {
				printIngestResult(cmd, res)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d turns failed", failed, len(reqs))
		}
		return nil
	}
}

func loadTurns(cmd *cobra.Command, path string) ([]controller.IngestRequest, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open turns file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parseTurns(r)
}

// parseTurns reads one IngestRequest per non-blank line.
func parseTurns(r io.Reader) ([]controller.IngestRequest, error) {
	var reqs []controller.IngestRequest
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var req controller.IngestRequest
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("parse line %d: %w", line, err)
		}
		if req.Role == "" {
			req.Role = types.RoleUser
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	return reqs, nil
}

func printIngestResult(cmd *cobra.Command, res controller.IngestResult) {
	out := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(out, "FAILED  %s\n", res.Error)
		return
	}
	fmt.Fprintf(out, "%s  score=%.2f  tiers=%v", res.TurnID, res.Detection.SignificanceScore, res.StoredIn)
	if len(res.DegradedTiers) > 0 {
		fmt.Fprintf(out, "  degraded=%v", res.DegradedTiers)
	}
	if res.EvictedTurns > 0 {
		fmt.Fprintf(out, "  evicted=%d", res.EvictedTurns)
	}
	fmt.Fprintln(out)
}
