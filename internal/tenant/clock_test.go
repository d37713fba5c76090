package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockNowIsFrozen(t *testing.T) {
	c := NewClock(42)
	assert.Equal(t, int64(42), c.Now())
	assert.Equal(t, int64(42), c.Now())
}

func TestPRNGIsDeterministicForSameSeed(t *testing.T) {
	a := NewPRNG(7)
	b := NewPRNG(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestPRNGFloat64StaysInUnitRange(t *testing.T) {
	p := NewPRNG(123)
	for i := 0; i < 1000; i++ {
		v := p.Float64()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestPRNGFoldsZeroSeed(t *testing.T) {
	p := NewPRNG(0)
	assert.NotEqual(t, uint64(0), p.Next())
}
