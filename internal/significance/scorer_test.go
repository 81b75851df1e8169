package significance

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/her-memory/internal/types"
)

var testOptions = Options{SignificanceThreshold: 3.0, EmotionalDeltaThreshold: 0.3}

func turn(role types.Role, content, entity string) types.Turn {
	return types.NewTurn(role, content, entity)
}

func TestAnalyzePlainTurnIsNotSignificant(t *testing.T) {
	got := Analyze(turn(types.RoleUser, "we had lunch", ""), nil, testOptions)
	assert.False(t, got.IsSignificant)
	assert.InDelta(t, 1.06, got.SignificanceScore, 1e-9)
	assert.Empty(t, got.DetectedEvents)
	assert.Empty(t, got.EmotionalChanges)
}

func TestAnalyzeLoveDeclaration(t *testing.T) {
	got := Analyze(turn(types.RoleUser, "Bob, I love you so much! I trust you completely!!", "alice"), nil, testOptions)

	require.True(t, got.IsSignificant)
	assert.GreaterOrEqual(t, got.SignificanceScore, 4.5)

	var relationship *types.DetectedEvent
	for i := range got.DetectedEvents {
		if got.DetectedEvents[i].Type == types.EventRelationshipChange && got.DetectedEvents[i].Keyword == "love" {
			relationship = &got.DetectedEvents[i]
		}
	}
	require.NotNil(t, relationship)
	assert.Equal(t, 0.7, relationship.Confidence)
	assert.Equal(t, []string{"alice", "bob"}, relationship.EntitiesInvolved)

	require.NotEmpty(t, got.EmotionalChanges)
	assert.Equal(t, "alice", got.EmotionalChanges[0].EntityID)
	assert.Greater(t, got.EmotionalChanges[0].NewState.Valence, got.EmotionalChanges[0].PreviousState.Valence)
}

func TestAnalyzeScoreIsClamped(t *testing.T) {
	long := strings.Repeat("Alice and Bob FOUGHT!!! they argued, hated, betrayed, yelled and lost everything?! ", 40)
	got := Analyze(turn(types.RoleUser, long, ""), []types.Turn{turn(types.RoleAssistant, long, "")}, testOptions)
	assert.Equal(t, 10.0, got.SignificanceScore)
}

func TestSignificanceNeverDecreasesWithMoreEventKeywords(t *testing.T) {
	base := "we talked for a while about the weekend"
	extra := []string{"won", "forgave", "argued", "married", "funeral", "graduated", "betrayed"}

	prev := Analyze(turn(types.RoleUser, base, ""), nil, testOptions).SignificanceScore
	text := base
	for _, kw := range extra {
		text += " " + kw
		score := Analyze(turn(types.RoleUser, text, ""), nil, testOptions).SignificanceScore
		assert.GreaterOrEqual(t, score, prev, "adding %q lowered the score", kw)
		prev = score
	}
}

func TestAnalyzeInheritsFromAlternatingSpeaker(t *testing.T) {
	prior := turn(types.RoleUser, "I HATE this, we argued again!!", "")
	reply := turn(types.RoleAssistant, "that sounds hard", "")

	alone := Analyze(reply, nil, testOptions).SignificanceScore
	inherited := Analyze(reply, []types.Turn{prior}, testOptions).SignificanceScore
	sameSpeaker := Analyze(turn(types.RoleUser, "that sounds hard", ""), []types.Turn{prior}, testOptions).SignificanceScore

	assert.Greater(t, inherited, alone)
	assert.LessOrEqual(t, inherited-alone, 1.0)
	assert.Equal(t, alone, sameSpeaker)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	tr := turn(types.RoleUser, "Carol finally graduated in Paris!", "")
	a := Analyze(tr, nil, testOptions)
	b := Analyze(tr, nil, testOptions)
	assert.Equal(t, a, b)
}

func TestEmotionalChangeUsesPriorContext(t *testing.T) {
	history := []types.Turn{turn(types.RoleUser, "Dana is so happy and excited today", "")}
	got := Analyze(turn(types.RoleUser, "Dana is happy", ""), history, testOptions)
	assert.Empty(t, got.EmotionalChanges, "similar state should stay under the delta threshold")

	got = Analyze(turn(types.RoleUser, "Dana is furious and angry", ""), history, testOptions)
	require.Len(t, got.EmotionalChanges, 1)
	assert.Equal(t, "dana", got.EmotionalChanges[0].EntityID)
	assert.Less(t, got.EmotionalChanges[0].NewState.Valence, 0.0)
}

func TestExtractEntities(t *testing.T) {
	got := ExtractEntities(`Yesterday Alice met Bob Smith in New York and gave him "The Little Prince".`)

	byID := map[string]types.NamedEntity{}
	for _, e := range got {
		byID[e.ID] = e
	}
	assert.Equal(t, types.EntityPerson, byID["alice"].Type)
	assert.Equal(t, types.EntityPerson, byID["bob_smith"].Type)
	assert.Equal(t, types.EntityPlace, byID["new_york"].Type)
	assert.Equal(t, types.EntityObject, byID["the_little_prince"].Type)
	_, hasStopWord := byID["yesterday"]
	assert.False(t, hasStopWord)
}

func TestExtractEntitiesPlaces(t *testing.T) {
	cases := map[string]string{
		"We met at Lisbon yesterday.":               "lisbon",
		"She came from Berlin last week.":           "berlin",
		"We drove to Paris.":                        "paris",
		"They moved into Porto.":                    "porto",
		"I stayed in Lisbon, Portugal for a month.": "portugal",
		"We saw the Louvre in Paris.":               "louvre",
	}
	for text, id := range cases {
		byID := map[string]types.NamedEntity{}
		for _, e := range ExtractEntities(text) {
			byID[e.ID] = e
		}
		require.Contains(t, byID, id, text)
		assert.Equal(t, types.EntityPlace, byID[id].Type, text)
	}

	byID := map[string]types.NamedEntity{}
	for _, e := range ExtractEntities("Bob Smith in New York called Alice.") {
		byID[e.ID] = e
	}
	assert.Equal(t, types.EntityPerson, byID["bob_smith"].Type)
	assert.Equal(t, types.EntityPlace, byID["new_york"].Type)
	assert.Equal(t, types.EntityPerson, byID["alice"].Type)
}

func TestPlacesAreNotEmotionTargets(t *testing.T) {
	got := Analyze(turn(types.RoleUser, "I am so happy we moved to Paris", ""), nil, testOptions)
	for _, c := range got.EmotionalChanges {
		assert.NotEqual(t, "paris", c.EntityID)
	}
}

func TestSentenceAroundKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("日本語", 100) + "."
	got := sentenceAround(text, 3)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxDescription)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestDetectFactAssertions(t *testing.T) {
	events := DetectEvents(turn(types.RoleUser, "Alice's favorite color is blue. I live in Berlin.", "user_1"))

	var facts []types.FactAssertion
	for _, e := range events {
		if e.Type == types.EventFactAssertion {
			require.NotNil(t, e.Fact)
			facts = append(facts, *e.Fact)
		}
	}
	assert.Contains(t, facts, types.FactAssertion{Entity: "alice", Attribute: "favorite_color", Value: "blue"})
	assert.Contains(t, facts, types.FactAssertion{Entity: "user_1", Attribute: "lives_in", Value: "Berlin"})
}
