// Package emotion estimates valence/arousal/dominance states from conversational text.
package emotion

import (
	"math"

	"github.com/easeaico/her-memory/internal/types"
)

// Clamp bounds valence to [-1,1] and arousal/dominance to [0,1].
func Clamp(v types.VAD) types.VAD {
	return types.VAD{
		Valence:   clampRange(v.Valence, -1, 1),
		Arousal:   clampRange(v.Arousal, 0, 1),
		Dominance: clampRange(v.Dominance, 0, 1),
	}
}

// Distance is the Euclidean distance between two states.
func Distance(a, b types.VAD) float64 {
	dv := a.Valence - b.Valence
	da := a.Arousal - b.Arousal
	dd := a.Dominance - b.Dominance
	return math.Sqrt(dv*dv + da*da + dd*dd)
}

func clampRange(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x):
		return lo
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
