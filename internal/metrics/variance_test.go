package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarianceBucket(t *testing.T) {
	tests := []struct {
		deltaPct float64
		expected string
	}{
		{0, "0-10%"},
		{9.9, "0-10%"},
		{10, "10-25%"},
		{16.7, "10-25%"}, // 29.99 -> 24.99
		{25, "25-50%"},
		{49.9, "25-50%"},
		{50, "50-100%"},
		{99.9, "50-100%"},
		{100, ">100%"},
		{200.1, ">100%"}, // 29.99 -> 89.99
		{-16.7, "10-25%"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, VarianceBucket(tc.deltaPct), "delta %.1f", tc.deltaPct)
	}
}
