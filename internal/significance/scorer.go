// Package significance rates how much a conversational turn is worth remembering.
package significance

import (
	"math"
	"regexp"
	"strings"

	"github.com/easeaico/her-memory/internal/emotion"
	"github.com/easeaico/her-memory/internal/types"
)

const maxScore = 10.0

var (
	repeatedPunctuation = regexp.MustCompile(`[!?]{2,}|\.{3,}`)
	lettersOnly         = regexp.MustCompile(`^[A-Za-z]+$`)
)

// Options are the thresholds the scorer reads from configuration.
type Options struct {
	SignificanceThreshold   float64
	EmotionalDeltaThreshold float64
}

// Analyze scores turn against its prior context.
// It performs no I/O and is safe for concurrent use.
func Analyze(turn types.Turn, history []types.Turn, opts Options) types.EventDetection {
	events := DetectEvents(turn)
	entities := ExtractEntities(turn.Content)

	score := baseScore(turn.Content, len(events), len(entities))
	if n := len(history); n > 0 {
		prev := history[n-1]
		if prev.Role != turn.Role {
			score += math.Min(1, 0.2*baseScore(prev.Content, len(DetectEvents(prev)), len(ExtractEntities(prev.Content))))
		}
	}
	score = clampScore(score)

	return types.EventDetection{
		IsSignificant:     score >= opts.SignificanceThreshold,
		SignificanceScore: score,
		DetectedEvents:    events,
		EmotionalChanges:  detectEmotionalChanges(turn, history, entities, opts.EmotionalDeltaThreshold),
		NamedEntities:     entities,
	}
}

// baseScore is the significance of text on its own, without the inherited bonus.
func baseScore(text string, eventHits, entityCount int) float64 {
	words := strings.Fields(text)

	score := 1.0
	score += math.Min(2, float64(len(words))/50)
	score += math.Min(3, 0.5*float64(len(emotion.Keywords(text)))+0.75*float64(eventHits))

	caps := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) >= 2 && lettersOnly.MatchString(w) && strings.ToUpper(w) == w {
			caps++
		}
	}
	runs := len(repeatedPunctuation.FindAllString(text, -1))
	score += math.Min(2, 0.5*float64(caps)+0.5*float64(runs))

	emphatic := strings.Count(text, "!") + strings.Count(text, "?")
	score += math.Min(1, 0.25*float64(emphatic))

	score += math.Min(1, 0.2*float64(entityCount))
	return score
}

func clampScore(score float64) float64 {
	if score != score || score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// detectEmotionalChanges compares the VAD of this turn with the latest prior estimate per entity.
// Turns without polarity keywords carry no emotional signal and yield no changes.
func detectEmotionalChanges(turn types.Turn, history []types.Turn, entities []types.NamedEntity, threshold float64) []types.EmotionalChange {
	if len(emotion.Keywords(turn.Content)) == 0 {
		return nil
	}
	current := emotion.Estimate(turn.Content)

	type target struct{ id, name string }
	var targets []target
	seen := map[string]bool{}
	if turn.EntityID != "" {
		targets = append(targets, target{id: turn.EntityID, name: turn.EntityID})
		seen[turn.EntityID] = true
	}
	for _, e := range entities {
		if e.Type != types.EntityPerson || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		targets = append(targets, target{id: e.ID, name: e.Name})
	}

	var changes []types.EmotionalChange
	for _, tg := range targets {
		previous := previousState(tg.id, tg.name, history)
		delta := emotion.Distance(previous, current)
		if delta < threshold {
			continue
		}
		changes = append(changes, types.EmotionalChange{
			EntityID:      tg.id,
			EntityName:    tg.name,
			PreviousState: previous,
			NewState:      current,
			Delta:         delta,
		})
	}
	return changes
}

func previousState(id, name string, history []types.Turn) types.VAD {
	lowerName := strings.ToLower(name)
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.EntityID == id || strings.Contains(strings.ToLower(t.Content), lowerName) {
			return emotion.Estimate(t.Content)
		}
	}
	return types.NeutralVAD()
}
