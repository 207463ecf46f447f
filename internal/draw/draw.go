// Package draw produces the roulette animation shown while a slot is drawn.
// The animation never picks the slot: it is built around a value the
// allocator already returned, so what is shown always matches what is
// recorded.
package draw

import "math/rand/v2"

// DefaultFrames is the length of a spin when the caller has no preference.
const DefaultFrames = 20

// Spin returns frames values in [1, upper] ending on final. The values
// before the last one are decoration and may repeat. upper below final is
// raised to final; frames below one yields just final.
func Spin(final, upper, frames int, rng *rand.Rand) []int {
	if upper < final {
		upper = final
	}
	if frames < 1 {
		frames = 1
	}
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	out := make([]int, frames)
	for i := 0; i < frames-1; i++ {
		if upper <= 1 {
			out[i] = 1
			continue
		}
		out[i] = intN(upper) + 1
	}
	out[frames-1] = final
	return out
}
