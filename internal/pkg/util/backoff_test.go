package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second}

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.Next())
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)
	assert.Equal(t, 6, b.Attempt())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoffZeroMin(t *testing.T) {
	b := Backoff{Max: time.Second}
	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, time.Duration(0), b.Next())
}
