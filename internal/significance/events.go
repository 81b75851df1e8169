package significance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/utils"
)

const (
	eventConfidence = 0.7
	entityWindow    = 50
	maxDescription  = 160
)

// eventLexicon is the fixed keyword set per event category.
var eventLexicon = map[types.EventType][]string{
	types.EventRelationshipChange: {
		"love", "in love", "marry", "married", "engaged", "dating", "break up", "broke up",
		"divorce", "friend", "friends", "best friend", "trust", "together", "boyfriend",
		"girlfriend", "partner", "kiss", "kissed",
	},
	types.EventConflict: {
		"fight", "fought", "argue", "argued", "argument", "hate", "betray", "betrayed",
		"yell", "yelled", "attack", "attacked", "threat", "threatened", "enemy", "furious",
	},
	types.EventResolution: {
		"forgive", "forgave", "forgiven", "apologize", "apologized", "made up", "reconcile",
		"reconciled", "agreed", "peace", "resolved", "make amends",
	},
	types.EventAchievement: {
		"won", "win", "promoted", "promotion", "graduated", "succeeded", "success",
		"accomplished", "award", "passed", "finally did", "achieved",
	},
	types.EventLoss: {
		"died", "dead", "death", "passed away", "lost", "funeral", "fired", "quit",
		"miss you", "gone forever", "grief",
	},
}

type keywordMatcher struct {
	eventType types.EventType
	keyword   string
	pattern   *regexp.Regexp
}

var matchers = buildMatchers()

func buildMatchers() []keywordMatcher {
	categories := make([]types.EventType, 0, len(eventLexicon))
	for t := range eventLexicon {
		categories = append(categories, t)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var out []keywordMatcher
	for _, t := range categories {
		for _, kw := range eventLexicon[t] {
			out = append(out, keywordMatcher{
				eventType: t,
				keyword:   kw,
				pattern:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
			})
		}
	}
	return out
}

var (
	possessiveFact  = regexp.MustCompile(`\b([A-Z][a-z]+)(?:'s)\s+(favorite\s+[a-z]+|name|job|age|birthday|hometown)\s+is\s+([^.!?,;]+)`)
	firstPersonAttr = regexp.MustCompile(`(?i)\bmy\s+(favorite\s+[a-z]+|name|job|age|birthday|hometown)\s+is\s+([^.!?,;]+)`)
	thirdPersonVerb = regexp.MustCompile(`\b([A-Z][a-z]+)\s+(lives in|works at|works as|is from|likes|hates)\s+([^.!?,;]+)`)
	firstPersonVerb = regexp.MustCompile(`(?i)\bI\s+(live in|work at|work as|am from)\s+([^.!?,;]+)`)
)

var attributeNames = map[string]string{
	"live in": "lives_in", "lives in": "lives_in",
	"work at": "works_at", "works at": "works_at",
	"work as": "works_as", "works as": "works_as",
	"am from": "is_from", "is from": "is_from",
	"likes": "likes", "hates": "hates",
}

// DetectEvents returns one event per distinct keyword hit plus any fact assertions.
func DetectEvents(turn types.Turn) []types.DetectedEvent {
	text := turn.Content
	mentions := extractMentions(text)

	var events []types.DetectedEvent
	for _, m := range matchers {
		loc := m.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		events = append(events, types.DetectedEvent{
			Type:             m.eventType,
			Keyword:          m.keyword,
			Confidence:       eventConfidence,
			Description:      fmt.Sprintf("%s (%s): %s", m.eventType, m.keyword, sentenceAround(text, loc[0])),
			EntitiesInvolved: entitiesNear(turn.EntityID, mentions, loc[0]),
		})
	}
	return append(events, detectFacts(turn)...)
}

func detectFacts(turn types.Turn) []types.DetectedEvent {
	speaker := turn.EntityID
	if speaker == "" {
		speaker = string(turn.Role)
	}

	var facts []types.FactAssertion
	for _, m := range possessiveFact.FindAllStringSubmatch(turn.Content, -1) {
		if stopNames[strings.ToLower(m[1])] {
			continue
		}
		facts = append(facts, types.FactAssertion{Entity: types.EntityID(m[1]), Attribute: normalizeAttribute(m[2]), Value: strings.TrimSpace(m[3])})
	}
	for _, m := range firstPersonAttr.FindAllStringSubmatch(turn.Content, -1) {
		facts = append(facts, types.FactAssertion{Entity: speaker, Attribute: normalizeAttribute(m[1]), Value: strings.TrimSpace(m[2])})
	}
	for _, m := range thirdPersonVerb.FindAllStringSubmatch(turn.Content, -1) {
		if stopNames[strings.ToLower(m[1])] {
			continue
		}
		facts = append(facts, types.FactAssertion{Entity: types.EntityID(m[1]), Attribute: normalizeAttribute(m[2]), Value: strings.TrimSpace(m[3])})
	}
	for _, m := range firstPersonVerb.FindAllStringSubmatch(turn.Content, -1) {
		facts = append(facts, types.FactAssertion{Entity: speaker, Attribute: normalizeAttribute(m[1]), Value: strings.TrimSpace(m[2])})
	}

	events := make([]types.DetectedEvent, 0, len(facts))
	for i := range facts {
		f := facts[i]
		events = append(events, types.DetectedEvent{
			Type:             types.EventFactAssertion,
			Keyword:          f.Attribute,
			Confidence:       eventConfidence,
			Description:      fmt.Sprintf("%s %s = %s", f.Entity, f.Attribute, f.Value),
			EntitiesInvolved: []string{f.Entity},
			Fact:             &f,
		})
	}
	return events
}

func normalizeAttribute(raw string) string {
	raw = strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if name, ok := attributeNames[raw]; ok {
		return name
	}
	return strings.ReplaceAll(raw, " ", "_")
}

// entitiesNear lists the owner (if any) and the proper nouns within the window around offset.
func entitiesNear(owner string, mentions []entityMention, offset int) []string {
	var ids []string
	seen := map[string]bool{}
	if owner != "" {
		ids = append(ids, owner)
		seen[owner] = true
	}
	for _, m := range mentions {
		if m.entity.Type == types.EntityObject || seen[m.entity.ID] {
			continue
		}
		if m.offset >= offset-entityWindow && m.offset <= offset+entityWindow {
			ids = append(ids, m.entity.ID)
			seen[m.entity.ID] = true
		}
	}
	return ids
}

func sentenceAround(text string, offset int) string {
	start := strings.LastIndexAny(text[:offset], ".!?\n")
	start++
	end := len(text)
	if i := strings.IndexAny(text[offset:], ".!?\n"); i >= 0 {
		end = offset + i + 1
	}
	return utils.Truncate(text[start:end], maxDescription)
}
