package emotion

import (
	"strings"
	"unicode"

	"github.com/easeaico/her-memory/internal/types"
)

// lexicon maps polarity keywords to the VAD state they signal.
var lexicon = map[string]types.VAD{
	"love":         {Valence: 0.9, Arousal: 0.7, Dominance: 0.6},
	"adore":        {Valence: 0.9, Arousal: 0.6, Dominance: 0.6},
	"happy":        {Valence: 0.8, Arousal: 0.6, Dominance: 0.6},
	"glad":         {Valence: 0.7, Arousal: 0.5, Dominance: 0.6},
	"joy":          {Valence: 0.8, Arousal: 0.7, Dominance: 0.6},
	"excited":      {Valence: 0.7, Arousal: 0.9, Dominance: 0.6},
	"amazing":      {Valence: 0.8, Arousal: 0.8, Dominance: 0.6},
	"wonderful":    {Valence: 0.8, Arousal: 0.6, Dominance: 0.6},
	"thank":        {Valence: 0.6, Arousal: 0.4, Dominance: 0.5},
	"thanks":       {Valence: 0.6, Arousal: 0.4, Dominance: 0.5},
	"trust":        {Valence: 0.6, Arousal: 0.4, Dominance: 0.6},
	"proud":        {Valence: 0.7, Arousal: 0.6, Dominance: 0.8},
	"calm":         {Valence: 0.4, Arousal: 0.1, Dominance: 0.6},
	"relieved":     {Valence: 0.5, Arousal: 0.2, Dominance: 0.5},
	"sorry":        {Valence: -0.2, Arousal: 0.4, Dominance: 0.3},
	"sad":          {Valence: -0.7, Arousal: 0.3, Dominance: 0.3},
	"lonely":       {Valence: -0.6, Arousal: 0.3, Dominance: 0.2},
	"miss":         {Valence: -0.3, Arousal: 0.4, Dominance: 0.3},
	"cry":          {Valence: -0.7, Arousal: 0.6, Dominance: 0.2},
	"hurt":         {Valence: -0.7, Arousal: 0.6, Dominance: 0.3},
	"angry":        {Valence: -0.7, Arousal: 0.9, Dominance: 0.7},
	"furious":      {Valence: -0.8, Arousal: 1.0, Dominance: 0.8},
	"hate":         {Valence: -0.9, Arousal: 0.8, Dominance: 0.6},
	"afraid":       {Valence: -0.6, Arousal: 0.8, Dominance: 0.1},
	"scared":       {Valence: -0.6, Arousal: 0.8, Dominance: 0.1},
	"worried":      {Valence: -0.5, Arousal: 0.7, Dominance: 0.3},
	"anxious":      {Valence: -0.5, Arousal: 0.8, Dominance: 0.3},
	"upset":        {Valence: -0.6, Arousal: 0.7, Dominance: 0.4},
	"disappointed": {Valence: -0.6, Arousal: 0.4, Dominance: 0.4},
	"betrayed":     {Valence: -0.8, Arousal: 0.8, Dominance: 0.3},
	"jealous":      {Valence: -0.5, Arousal: 0.7, Dominance: 0.4},
	"ashamed":      {Valence: -0.6, Arousal: 0.5, Dominance: 0.1},
	"bored":        {Valence: -0.3, Arousal: 0.1, Dominance: 0.4},
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "dont": true,
	"didn't": true, "isn't": true, "wasn't": true, "can't": true,
}

// Keywords returns the lexicon entries present in text, in order of appearance.
func Keywords(text string) []string {
	var found []string
	seen := map[string]bool{}
	for _, tok := range tokenize(text) {
		if _, ok := lookup(tok); ok && !seen[tok] {
			seen[tok] = true
			found = append(found, tok)
		}
	}
	return found
}

// IsEmotional reports whether word is a polarity keyword.
func IsEmotional(word string) bool {
	_, ok := lookup(strings.ToLower(word))
	return ok
}

// Estimate derives a VAD snapshot from keyword polarity in text.
// Text without polarity keywords yields the neutral state.
func Estimate(text string) types.VAD {
	tokens := tokenize(text)
	var sum types.VAD
	hits := 0
	for i, tok := range tokens {
		v, ok := lookup(tok)
		if !ok {
			continue
		}
		if i > 0 && negators[tokens[i-1]] {
			v.Valence = -v.Valence * 0.6
		}
		sum.Valence += v.Valence
		sum.Arousal += v.Arousal
		sum.Dominance += v.Dominance
		hits++
	}
	if hits == 0 {
		return types.NeutralVAD()
	}
	n := float64(hits)
	est := types.VAD{Valence: sum.Valence / n, Arousal: sum.Arousal / n, Dominance: sum.Dominance / n}

	exclaims := strings.Count(text, "!")
	if exclaims > 4 {
		exclaims = 4
	}
	est.Arousal += 0.05 * float64(exclaims)
	return Clamp(est)
}

func lookup(tok string) (types.VAD, bool) {
	if v, ok := lexicon[tok]; ok {
		return v, true
	}
	// loved, loves, hated, ...
	for _, suffix := range []string{"d", "s", "ed"} {
		if stem := strings.TrimSuffix(tok, suffix); stem != tok {
			if v, ok := lexicon[stem]; ok {
				return v, true
			}
		}
	}
	return types.VAD{}, false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
