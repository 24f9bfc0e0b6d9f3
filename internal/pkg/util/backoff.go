package util

import "time"

// Backoff yields exponentially growing delays from Min, doubling on every
// call to Next and capped at Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	attempt int
}

func (b *Backoff) Next() time.Duration {
	d := b.Min
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if d < b.Min {
		d = b.Min
	}
	b.attempt++

	return d
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt is the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}
