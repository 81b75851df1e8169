package emotion

import "github.com/easeaico/her-memory/internal/types"

// Mood returns a short label for a VAD state.
func Mood(v types.VAD) string {
	switch {
	case v.Valence >= 0.3 && v.Arousal >= 0.6:
		return "Excited"
	case v.Valence >= 0.3:
		return "Happy"
	case v.Valence <= -0.3 && v.Arousal >= 0.7 && v.Dominance >= 0.5:
		return "Angry"
	case v.Valence <= -0.3 && v.Dominance < 0.3 && v.Arousal >= 0.6:
		return "Afraid"
	case v.Valence <= -0.3:
		return "Sad"
	default:
		return "Neutral"
	}
}
