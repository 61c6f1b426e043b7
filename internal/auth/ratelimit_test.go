package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockoutAfter(t *testing.T) {
	tests := []struct {
		failed int
		want   time.Duration
	}{
		{1, 0},
		{5, 0},
		{10, 0},
		{11, 5 * time.Second},
		{12, 10 * time.Second},
		{13, 20 * time.Second},
		{14, 30 * time.Second},
		{15, 60 * time.Second},
		{16, 120 * time.Second},
		{17, 600 * time.Second},
		{18, 1200 * time.Second},
		{19, 1800 * time.Second},
		{20, 3600 * time.Second},
		{21, 3600 * time.Second},
		{100, 3600 * time.Second},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LockoutAfter(tc.failed), "failure #%d", tc.failed)
	}
}
