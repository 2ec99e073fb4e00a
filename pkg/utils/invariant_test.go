package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseInvariant(t *testing.T) {
	invariantsMetric.Reset() // Start from a clean counter.
	RaiseInvariant("invariant", "test", "This is a test invariant violation")
	RaiseInvariant("invariant", "test", "This is another test invariant violation", "attempt", 2)
	assert.Equal(t, 2, GetMetricValue("invariant" /*module*/, "test" /*invariantType*/))
	assert.Equal(t, 0, GetMetricValue("invariant" /*module*/, "other" /*invariantType*/))
}

func TestRaiseInvariant_PanicsInTestMode(t *testing.T) {
	IsTestMode = true
	t.Cleanup(func() { IsTestMode = false })
	assert.PanicsWithValue(t, "invariant violated: boom", func() {
		RaiseInvariant("invariant", "boom", "Should panic in test mode")
	})
}
