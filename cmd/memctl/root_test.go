package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/her-memory/internal/controller"
	"github.com/easeaico/her-memory/internal/types"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd("1.0.0", nil)
	assert.Equal(t, "memctl", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	for _, name := range []string{"config", "log-level", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd("dev", &app{})
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"ingest", "query", "history", "characters", "fact", "inspect", "stats", "prune", "estimate", "maintain"} {
		assert.Contains(t, names, want)
	}
}

func TestParseTurns(t *testing.T) {
	input := `{"session_id":"s1","role":"user","content":"hi there"}

{"session_id":"s1","content":"no role given","entity_id":"alice"}
`
	reqs, err := parseTurns(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, types.RoleUser, reqs[1].Role)
	assert.Equal(t, "alice", reqs[1].EntityID)

	_, err = parseTurns(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights(nil)
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = parseWeights([]float64{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, &types.FusionWeights{L1: 1}, w)

	_, err = parseWeights([]float64{1, 0})
	assert.Error(t, err)
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	a := &app{}
	cmd := NewRootCmd("test", a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	a.close()
	require.NoError(t, err, out.String())
	return out.String()
}

func TestIngestThenQueryEndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "memory.db"))
	t.Setenv("CHROMEM_PATH", filepath.Join(dir, "vectors"))
	t.Setenv("EMBEDDING_BACKEND", "hash")
	t.Setenv("VECTOR_BACKEND", "chromem")
	t.Setenv("L2_SIGNIFICANCE_THRESHOLD", "0.5")

	turns := filepath.Join(dir, "turns.jsonl")
	require.NoError(t, os.WriteFile(turns, []byte(
		`{"session_id":"s1","role":"user","content":"I love you","entity_id":"alice"}
{"session_id":"s1","role":"user","content":"Emma lives in Lisbon","entity_id":"alice"}
`), 0o644))

	var results []controller.IngestResult
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "ingest", "--file", turns, "--json")), &results))
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Success, res.Error)
		assert.Contains(t, res.StoredIn, types.TierL2)
	}

	var chars []types.Character
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "characters", "--json")), &chars))
	require.NotEmpty(t, chars)

	var fused types.FusedResult
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "query", "where does Emma live", "--json")), &fused))
	assert.NotEmpty(t, fused.L3.Fragments)
	assert.NotEmpty(t, fused.L2.Facts)

	rendered := runCLI(t, "query", "where does Emma live", "--render")
	assert.Contains(t, rendered, "[Known facts]")

	history := runCLI(t, "history", "s1")
	assert.Contains(t, history, "Emma lives in Lisbon")
}

func TestQueryFindsFragmentsFromEarlierRunWithInMemoryIndex(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "memory.db"))
	t.Setenv("CHROMEM_PATH", "")
	t.Setenv("EMBEDDING_BACKEND", "hash")
	t.Setenv("VECTOR_BACKEND", "chromem")
	t.Setenv("L2_SIGNIFICANCE_THRESHOLD", "0.5")

	var results []controller.IngestResult
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "ingest", "I love you", "--session", "s1", "--entity", "alice", "--json")), &results))
	require.Len(t, results, 1)
	res := results[0]
	require.True(t, res.Success, res.Error)
	require.Contains(t, res.StoredIn, types.TierL3)

	var fused types.FusedResult
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, "query", "I love you", "--session", "s1", "--json")), &fused))
	require.NotEmpty(t, fused.L3.Fragments)
	assert.Equal(t, res.FragmentID, fused.L3.Fragments[0].ID)
}
