package offline

import (
	"math/rand/v2"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffMax  = 5 * time.Minute
)

// backoffDelay returns a jittered exponential delay for the given number of
// consecutive failing passes, capped at backoffMax.
func backoffDelay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures > 16 {
		return backoffMax
	}
	exp := backoffBase * time.Duration(1<<failures)
	if exp > backoffMax {
		return backoffMax
	}
	return exp/2 + rand.N(exp/2)
}
