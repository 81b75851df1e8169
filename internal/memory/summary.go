package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/easeaico/her-memory/internal/emotion"
	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/utils"
)

const excerptLimit = 200

// summarize builds the fragment text: the first event description, else a turn excerpt,
// followed by a compact mood annotation for each emotional change.
func summarize(turn types.Turn, det types.EventDetection) string {
	text := utils.Truncate(utils.NormalizeSpace(turn.Content), excerptLimit)
	if len(det.DetectedEvents) > 0 && det.DetectedEvents[0].Description != "" {
		text = det.DetectedEvents[0].Description
	}
	if len(det.EmotionalChanges) == 0 {
		return text
	}
	notes := make([]string, 0, len(det.EmotionalChanges))
	for _, c := range det.EmotionalChanges {
		name := c.EntityName
		if name == "" {
			name = c.EntityID
		}
		notes = append(notes, fmt.Sprintf("%s %s->%s", name, emotion.Mood(c.PreviousState), emotion.Mood(c.NewState)))
	}
	return text + " [" + strings.Join(notes, "; ") + "]"
}

// classify picks event when any event was detected, insight when the score clears insightAt, else summary.
func classify(det types.EventDetection, insightAt float64) types.ContentType {
	switch {
	case len(det.DetectedEvents) > 0:
		return types.ContentEvent
	case det.SignificanceScore > insightAt:
		return types.ContentInsight
	default:
		return types.ContentSummary
	}
}

// tagsFor returns the sorted role, event, entity and entity-type tags of a turn.
func tagsFor(turn types.Turn, det types.EventDetection) []string {
	set := map[string]bool{}
	if turn.Role != "" {
		set["role:"+string(turn.Role)] = true
	}
	if turn.EntityID != "" {
		set[EntityTag(turn.EntityID)] = true
	}
	for _, ev := range det.DetectedEvents {
		set["event:"+string(ev.Type)] = true
		for _, id := range ev.EntitiesInvolved {
			set[EntityTag(id)] = true
		}
	}
	for _, e := range det.NamedEntities {
		set[EntityTag(e.ID)] = true
		set["type:"+string(e.Type)] = true
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// EntityTag is the tag that marks a fragment as mentioning an entity.
func EntityTag(entityID string) string {
	return "entity:" + types.EntityID(entityID)
}
