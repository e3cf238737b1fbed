package worker

import "math/rand"

// randFraction returns a value in [0,1), used to jitter --random-wait
// retry delays per spec.md §6.
func randFraction() float64 {
	return rand.Float64()
}
