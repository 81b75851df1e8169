// Package prompt renders a fused memory result as a context block for a language model.
package prompt

import (
	"bytes"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/her-memory/internal/types"
)

// BuildContext contains all inputs for rendering.
type BuildContext struct {
	Query  string
	Result types.FusedResult
}

// Builder renders fused results.
type Builder struct {
	historyLimit int
	nowFunc      func() time.Time
}

// NewBuilder creates a Builder that shows at most historyLimit recent turns.
func NewBuilder(historyLimit int) *Builder {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Builder{
		historyLimit: historyLimit,
		nowFunc:      time.Now,
	}
}

// Render writes the budgeted items of the result as text.
// Only items that survived the token budget appear; recent turns keep their chronological order.
func (b *Builder) Render(ctx BuildContext) (string, error) {
	kept := make(map[string]bool, len(ctx.Result.Items))
	var graph, memories []string
	for _, item := range ctx.Result.Items {
		switch item.Tier {
		case types.TierL1:
			kept[item.ID] = true
		case types.TierL2:
			graph = append(graph, item.Text)
		case types.TierL3:
			memories = append(memories, item.Text)
		}
	}

	var history []types.Turn
	for _, t := range ctx.Result.L1.Turns {
		if kept[t.ID] {
			history = append(history, t)
		}
	}
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}

	data := struct {
		Now      string
		Query    string
		Graph    []string
		Memories []string
		History  []types.Turn
	}{
		Now:      b.nowFunc().Format(time.RFC3339),
		Query:    ctx.Query,
		Graph:    graph,
		Memories: memories,
		History:  history,
	}

	var buf bytes.Buffer
	if err := contextTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render memory context: %w", err)
	}
	return buf.String(), nil
}

// Build renders the context as a system content followed by the query as user content.
func (b *Builder) Build(ctx BuildContext) ([]*genai.Content, error) {
	text, err := b.Render(ctx)
	if err != nil {
		return nil, err
	}
	systemContent := genai.NewContentFromText(text, "system")
	userContent := genai.NewContentFromText(ctx.Query, "user")
	return []*genai.Content{systemContent, userContent}, nil
}
