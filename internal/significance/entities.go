package significance

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/easeaico/her-memory/internal/types"
)

var (
	wordPattern   = regexp.MustCompile(`[A-Za-z][A-Za-z'\-]*`)
	quotedPattern = regexp.MustCompile(`["“]([^"”]{2,60})["”]`)
)

// stopNames are capitalized words that never name an entity.
var stopNames = map[string]bool{
	"i": true, "i'm": true, "i've": true, "i'll": true, "i'd": true, "me": true, "my": true,
	"you": true, "your": true, "we": true, "our": true, "they": true, "their": true,
	"he": true, "she": true, "it": true, "his": true, "her": true, "its": true,
	"the": true, "a": true, "an": true, "this": true, "that": true, "these": true, "those": true,
	"and": true, "but": true, "or": true, "so": true, "if": true, "then": true, "because": true,
	"oh": true, "yes": true, "no": true, "ok": true, "okay": true, "well": true, "hey": true,
	"hi": true, "hello": true, "thanks": true, "thank": true, "please": true, "sorry": true,
	"what": true, "why": true, "how": true, "when": true, "where": true, "who": true, "which": true,
	"there": true, "here": true, "today": true, "tomorrow": true, "yesterday": true, "tonight": true,
	"let": true, "let's": true, "don't": true, "do": true, "did": true, "is": true, "are": true,
	"was": true, "were": true, "can": true, "could": true, "would": true, "should": true, "will": true,
	"maybe": true, "just": true, "also": true, "after": true, "before": true, "now": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "not": true, "all": true, "everyone": true, "nobody": true,
}

// locatives mark an adjacent proper noun as a place.
var locatives = map[string]bool{
	"in": true, "at": true, "from": true, "to": true, "near": true, "into": true,
	"visit": true, "visited": true, "visiting": true,
}

// entityMention is a named entity with its byte offset in the turn.
type entityMention struct {
	entity types.NamedEntity
	offset int
}

// nameRun is a sequence of adjacent capitalized words.
type nameRun struct {
	words      []string
	start, end int
	prev, next string
}

// ExtractEntities returns the distinct named entities in text.
func ExtractEntities(text string) []types.NamedEntity {
	mentions := extractMentions(text)
	seen := map[string]bool{}
	out := make([]types.NamedEntity, 0, len(mentions))
	for _, m := range mentions {
		if seen[m.entity.ID] {
			continue
		}
		seen[m.entity.ID] = true
		out = append(out, m.entity)
	}
	return out
}

func extractMentions(text string) []entityMention {
	runs := nameRuns(text)
	mentions := make([]entityMention, 0, len(runs))
	prevPlace := -1
	for i, r := range runs {
		name := strings.Join(r.words, " ")
		kind := types.EntityPerson
		if isPlace(text, runs, i, prevPlace) {
			kind = types.EntityPlace
			prevPlace = i
		}
		mentions = append(mentions, entityMention{
			entity: types.NamedEntity{ID: types.EntityID(name), Name: name, Type: kind},
			offset: r.start,
		})
	}

	for _, m := range quotedPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.TrimSpace(text[m[2]:m[3]])
		if name == "" {
			continue
		}
		mentions = append(mentions, entityMention{
			entity: types.NamedEntity{ID: types.EntityID(name), Name: name, Type: types.EntityObject},
			offset: m[0],
		})
	}
	return mentions
}

func nameRuns(text string) []nameRun {
	locs := wordPattern.FindAllStringIndex(text, -1)
	var (
		runs []nameRun
		cur  *nameRun
	)
	prevWord := ""
	for i, loc := range locs {
		word := strings.TrimSuffix(strings.TrimSuffix(text[loc[0]:loc[1]], "'s"), "'")
		lower := strings.ToLower(word)
		adjacent := i > 0 && onlySpaces(text[locs[i-1][1]:loc[0]])
		if isProperNoun(word) {
			if cur != nil && !adjacent {
				runs = append(runs, *cur)
				cur = nil
			}
			if cur == nil {
				cur = &nameRun{start: loc[0], prev: prevWord}
			}
			cur.words = append(cur.words, word)
			cur.end = loc[1]
		} else if cur != nil {
			if adjacent {
				cur.next = lower
			}
			runs = append(runs, *cur)
			cur = nil
		}
		prevWord = lower
	}
	if cur != nil {
		runs = append(runs, *cur)
	}
	return runs
}

// isPlace reports whether runs[i] names a place: it follows a locative ("moved to Paris"),
// extends the previous place after a comma ("Lisbon, Portugal"), or is a definite name
// followed by a locative ("the Louvre in Paris").
func isPlace(text string, runs []nameRun, i, prevPlace int) bool {
	r := runs[i]
	if locatives[r.prev] {
		return true
	}
	if prevPlace >= 0 && prevPlace == i-1 && strings.TrimSpace(text[runs[prevPlace].end:r.start]) == "," {
		return true
	}
	return r.prev == "the" && locatives[r.next]
}

func isProperNoun(word string) bool {
	if len(word) < 2 || stopNames[strings.ToLower(word)] {
		return false
	}
	r := []rune(word)
	if !unicode.IsUpper(r[0]) {
		return false
	}
	// all-caps shouting is intensity, not a name
	return strings.ToUpper(word) != word
}

func onlySpaces(s string) bool {
	return strings.TrimSpace(s) == "" && !strings.ContainsAny(s, "\n")
}
