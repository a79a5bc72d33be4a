package counters_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlasnet/atlas-go/module/counters"
)

func TestMonotonicConsumer(t *testing.T) {
	counter := counters.NewMonotonicCounter(3)
	require.Equal(t, uint64(3), counter.Value())

	// lower and equal values are rejected
	require.False(t, counter.Set(2))
	require.Equal(t, uint64(3), counter.Value())
	require.False(t, counter.Set(3))

	require.True(t, counter.Set(4))
	require.Equal(t, uint64(4), counter.Value())
}

func TestMonotonicConsumerConcurrent(t *testing.T) {
	counter := counters.NewMonotonicCounter(0)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			counter.Set(v)
		}(uint64(i))
	}
	wg.Wait()

	require.Equal(t, uint64(100), counter.Value())
}
