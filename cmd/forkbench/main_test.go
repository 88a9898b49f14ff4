package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/forkpool/dac"
	"github.com/utkarsh5026/forkpool/pool"
)

func TestIsPrime(t *testing.T) {
	for n := -2; n < 1000; n++ {
		if got, want := isPrime(n), isPrimeSlow(n); got != want {
			t.Errorf("isPrime(%d) = %v, expected %v", n, got, want)
		}
	}
}

func isPrimeSlow(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d < n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func TestPrimeCounter(t *testing.T) {
	d, err := dac.New[struct{}](primeCounter{}, pool.WithMinWorkers(1), pool.WithMaxWorkers(4))
	require.NoError(t, err)
	defer func() { _ = d.Close(context.Background()) }()

	statuses, err := d.DivideAndConquer(context.Background(), struct{}{}, 0, 10_000, 1_000)
	require.NoError(t, err)

	total := 0
	for _, s := range statuses {
		total += s
	}
	assert.Equal(t, 1229, total)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "fair_lock", sanitize("Fair Lock"))
	assert.Equal(t, "monitor", sanitize("Monitor"))
}
