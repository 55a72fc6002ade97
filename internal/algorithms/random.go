// Random parameter draws shared by all filters
package algorithms

// Rand is the randomness source every filter and the composer draw from.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// uniform draws from [lo, hi)
func uniform(rng Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// intBetween draws from [lo, hi] inclusive
func intBetween(rng Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// lowBiased draws from [0, max) with density proportional to x^-0.5,
// i.e. a power distribution with exponent 0.5: most draws are small.
func lowBiased(rng Rand, max float64) float64 {
	u := rng.Float64()
	return max * u * u
}
