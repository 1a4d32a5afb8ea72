package session

import (
	"time"

	"github.com/cenkalti/backoff"
)

// LinearBackOff waits Base*n after the n-th failed attempt.
type LinearBackOff struct {
	Base time.Duration
	n    int64
}

// NewLinearBackOff returns a linear schedule starting at base.
func NewLinearBackOff(base time.Duration) *LinearBackOff {
	return &LinearBackOff{Base: base}
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.Base * time.Duration(b.n)
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() {
	b.n = 0
}

var _ backoff.BackOff = (*LinearBackOff)(nil)
