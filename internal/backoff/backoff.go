// Package backoff computes delays between retry attempts of a failed task.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift bounds the exponent so the delay computation cannot overflow.
const maxShift = 62

// Type selects a delay algorithm.
type Type int

const (
	// Exponential doubles the delay after every attempt (default).
	Exponential Type = iota
	// Jittered is Exponential with a random ±jitterFactor spread.
	Jittered
	// Constant always waits the initial delay.
	Constant
)

// Strategy returns the delay to wait before a retry.
// attempt is 0-indexed: 0 is the first retry after the initial failure.
type Strategy interface {
	NextDelay(attempt int) time.Duration
}

// New creates the strategy of the given type. A non-positive maxDelay
// leaves delays uncapped.
func New(t Type, initialDelay, maxDelay time.Duration, jitterFactor float64) Strategy {
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}

	switch t {
	case Jittered:
		return &jittered{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			jitterFactor: min(max(jitterFactor, 0), 1),
			rng:          rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
		}
	case Constant:
		return constant(min(initialDelay, maxDelay))
	default:
		return exponential{initialDelay: initialDelay, maxDelay: maxDelay}
	}
}

type constant time.Duration

func (c constant) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	return time.Duration(c)
}

type exponential struct {
	initialDelay, maxDelay time.Duration
}

func (e exponential) NextDelay(attempt int) time.Duration {
	return exponentialDelay(attempt, e.initialDelay, e.maxDelay)
}

// jittered spreads retries of tasks that failed together so they do not
// hit a shared dependency at the same instant.
type jittered struct {
	initialDelay, maxDelay time.Duration
	jitterFactor           float64
	rng                    *rand.Rand
	mu                     sync.Mutex
}

func (j *jittered) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	base := exponentialDelay(attempt, j.initialDelay, j.maxDelay)

	j.mu.Lock()
	factor := 1.0 + (j.rng.Float64()*2-1)*j.jitterFactor
	j.mu.Unlock()

	return min(max(time.Duration(float64(base)*factor), 0), j.maxDelay)
}

func exponentialDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(attempt)) * initialDelay
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}
