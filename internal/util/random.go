package util

import "math/rand/v2"

// Shuffle permutes s in place using math/rand/v2.
func Shuffle[T any](s []T) {
	rand.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
