package idgen

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns whatever instant the test last set.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestGenerator(t *testing.T, clk *fakeClock) *Generator {
	t.Helper()
	g, err := New(Config{ProcessID: 3, DatacenterID: 1, Now: clk.Now})
	require.NoError(t, err)
	return g
}

func TestGenerate_SameMillisecondStrictlyIncreasing(t *testing.T) {
	clk := &fakeClock{t: DefaultEpoch.Add(time.Hour)}
	g := newTestGenerator(t, clk)

	seen := make(map[int64]struct{}, MaxSequence+1)
	var prev int64
	for i := 0; i <= MaxSequence; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		require.Greater(t, id, prev, "call %d", i)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
		prev = id
	}
	assert.Len(t, seen, MaxSequence+1)
}

func TestGenerate_SequenceOverflowBorrowsNextMillisecond(t *testing.T) {
	start := DefaultEpoch.Add(time.Minute)
	clk := &fakeClock{t: start}
	g := newTestGenerator(t, clk)

	var last int64
	for i := 0; i <= MaxSequence; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		last = id
	}

	id, err := g.Generate()
	require.NoError(t, err)
	require.Greater(t, id, last)

	p := g.Decode(id)
	assert.Equal(t, start.Add(time.Millisecond), p.Time)
	assert.Equal(t, int64(0), p.Sequence)
}

func TestGenerate_ClockJitterTolerated(t *testing.T) {
	start := DefaultEpoch.Add(time.Hour)
	clk := &fakeClock{t: start}
	g := newTestGenerator(t, clk)

	first, err := g.Generate()
	require.NoError(t, err)

	clk.Set(start.Add(-5 * time.Millisecond))
	second, err := g.Generate()
	require.NoError(t, err)
	require.Greater(t, second, first)
	assert.Equal(t, start, g.Decode(second).Time)
}

func TestGenerate_ClockRegressionFails(t *testing.T) {
	start := DefaultEpoch.Add(time.Hour)
	clk := &fakeClock{t: start}
	g := newTestGenerator(t, clk)

	_, err := g.Generate()
	require.NoError(t, err)

	clk.Set(start.Add(-15 * time.Millisecond))
	_, err = g.Generate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClockRegression))

	var cre *ClockRegressionError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, int64(15), cre.Last-cre.Current)
}

func TestDecode_RoundTripsFields(t *testing.T) {
	at := DefaultEpoch.Add(42 * time.Second)
	clk := &fakeClock{t: at}
	g := newTestGenerator(t, clk)

	id, err := g.Generate()
	require.NoError(t, err)

	p := g.Decode(id)
	assert.Equal(t, at, p.Time)
	assert.Equal(t, int64(1), p.DatacenterID)
	assert.Equal(t, int64(3), p.ProcessID)
	assert.Equal(t, int64(0), p.Sequence)
	assert.Less(t, id, int64(1)<<52)
}

func TestNew_RejectsOutOfRangeConfig(t *testing.T) {
	_, err := New(Config{ProcessID: MaxProcess + 1})
	assert.Error(t, err)
	_, err = New(Config{DatacenterID: 2})
	assert.Error(t, err)
	_, err = New(Config{ProcessID: -1})
	assert.Error(t, err)
}

func TestGenerate_ConcurrentCallersNeverCollide(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	out := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := g.Generate()
				if err != nil {
					t.Error(err)
					return
				}
				out <- id
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range out {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}
