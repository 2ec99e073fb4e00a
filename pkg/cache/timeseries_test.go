package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func TestTimeSeries_New(t *testing.T) {
	ts := NewTimeSeries(time.Hour, 3, seriesStart)
	buckets := ts.Buckets()
	require.Len(t, buckets, 3)
	assert.Equal(t, seriesStart.Add(-2*time.Hour), buckets[0].Start)
	assert.Equal(t, seriesStart, buckets[2].Start)
	assert.Equal(t, []string{"08:00", "09:00", "10:00"}, ts.Visualization().Labels)
}

func TestTimeSeries_UpdateWithinInterval(t *testing.T) {
	ts := NewTimeSeries(time.Hour, 3, seriesStart)
	ts.Update(seriesStart.Add(time.Minute), 10, 5, 1<<20)
	ts.Update(seriesStart.Add(30*time.Minute), 100, 50, 2<<20)

	viz := ts.Visualization()
	assert.Equal(t, []int64{0, 0, 100}, viz.Hits)
	assert.Equal(t, []int64{0, 0, 50}, viz.Misses)
	assert.Equal(t, []float64{0, 0, 2}, viz.MemoryMB)
}

func TestTimeSeries_Rotation(t *testing.T) {
	for _, testCase := range []struct {
		name         string
		elapsed      time.Duration
		expectedHits []int64
		lastStart    time.Time
	}{
		{
			name:         "one interval",
			elapsed:      time.Hour,
			expectedHits: []int64{0, 1, 2},
			lastStart:    seriesStart.Add(time.Hour),
		},
		{
			name:         "partial interval rounds down",
			elapsed:      90 * time.Minute,
			expectedHits: []int64{0, 1, 2},
			lastStart:    seriesStart.Add(time.Hour),
		},
		{
			name:         "two intervals",
			elapsed:      2 * time.Hour,
			expectedHits: []int64{1, 0, 2},
			lastStart:    seriesStart.Add(2 * time.Hour),
		},
		{
			name:         "more intervals than buckets",
			elapsed:      10 * time.Hour,
			expectedHits: []int64{0, 0, 2},
			lastStart:    seriesStart.Add(10 * time.Hour),
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			ts := NewTimeSeries(time.Hour, 3, seriesStart)
			ts.Update(seriesStart, 1, 0, 0)
			ts.Update(seriesStart.Add(testCase.elapsed), 2, 0, 0)

			buckets := ts.Buckets()
			var hits []int64
			for _, bucket := range buckets {
				hits = append(hits, bucket.Hits)
			}
			assert.Equal(t, testCase.expectedHits, hits)
			assert.Equal(t, testCase.lastStart, buckets[len(buckets)-1].Start)
			for i := 1; i < len(buckets); i++ {
				assert.Equal(t, time.Hour, buckets[i].Start.Sub(buckets[i-1].Start), "Buckets must be contiguous")
			}
		})
	}
}

func TestTimeSeries_Resize(t *testing.T) {
	t.Run("shrink keeps newest", func(t *testing.T) {
		ts := NewTimeSeries(time.Hour, 3, seriesStart)
		ts.Update(seriesStart, 1, 0, 0)
		ts.Update(seriesStart.Add(time.Hour), 2, 0, 0)
		ts.Update(seriesStart.Add(2*time.Hour), 3, 0, 0)

		ts.Resize(time.Hour, 2, seriesStart.Add(2*time.Hour))
		assert.Equal(t, []int64{2, 3}, ts.Visualization().Hits)
	})

	t.Run("grow pads older buckets", func(t *testing.T) {
		ts := NewTimeSeries(time.Hour, 2, seriesStart)
		ts.Update(seriesStart, 7, 0, 0)

		ts.Resize(10*time.Minute, 5, seriesStart)
		buckets := ts.Buckets()
		require.Len(t, buckets, 5)
		assert.Equal(t, int64(7), buckets[4].Hits)
		assert.Equal(t, 10*time.Minute, ts.Interval())
		assert.Equal(t, seriesStart.Add(-90*time.Minute), buckets[0].Start)
	})
}

func TestTimeSeries_Reset(t *testing.T) {
	ts := NewTimeSeries(time.Hour, 3, seriesStart)
	ts.Update(seriesStart, 5, 5, 5)
	ts.Reset(seriesStart.Add(5 * time.Hour))

	for _, bucket := range ts.Buckets() {
		assert.Zero(t, bucket.Hits)
	}
	assert.Equal(t, seriesStart.Add(5*time.Hour), ts.Buckets()[2].Start)
}

func TestCache_StatsFeedTimeSeries(t *testing.T) {
	c, clock := newTestCache(t, 10, 1<<20)
	require.NoError(t, c.Put("k", newTestImage(2, 2, 1)))
	_, err := c.Get("k")
	require.NoError(t, err)
	c.Stats()

	clock.Advance(time.Hour)
	_, err = c.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	c.Stats()

	viz := c.TimeSeries()
	n := len(viz.Hits)
	assert.Equal(t, []int64{1, 1}, viz.Hits[n-2:])
	assert.Equal(t, []int64{0, 1}, viz.Misses[n-2:])
}
