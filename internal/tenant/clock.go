// Package tenant implements the sandboxed, single-threaded per-tick
// task runtime that executes inside one tenant. A tick never re-enters
// itself: runTasks processes exactly one batch of inbound messages to
// completion before returning, and nothing it calls may block on I/O.
package tenant

// Clock is the frozen wall-clock facade a running tick observes. Every
// call to Now within one runTasks invocation returns the same
// millisecond value the tick was started with - Date.now() never
// advances mid-tick, so two reads of it in the same task are never
// observably different.
type Clock struct {
	nowMillis int64
}

// NewClock freezes a clock at nowMillis for the duration of one tick.
func NewClock(nowMillis int64) *Clock {
	return &Clock{nowMillis: nowMillis}
}

// Now returns the tick's frozen millisecond timestamp.
func (c *Clock) Now() int64 {
	return c.nowMillis
}

// PRNG is a xorshift64+ generator reseeded at the start of every tick
// from the tick's frozen timestamp, so randomness is deterministic
// given the same sequence of tick timestamps - a requirement for
// recorded traces to replay identically.
type PRNG struct {
	state uint64
}

// NewPRNG reseeds a generator for one tick. A zero seed is folded to a
// fixed nonzero value, since xorshift64+ never recovers from an
// all-zero state.
func NewPRNG(seed int64) *PRNG {
	s := uint64(seed)
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return &PRNG{state: s}
}

// Next returns the generator's next 64-bit value and advances its
// state.
func (p *PRNG) Next() uint64 {
	x := p.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	p.state = x
	return x
}

// Float64 returns a value in [0, 1), the shape Math.random() callers
// expect.
func (p *PRNG) Float64() float64 {
	return float64(p.Next()>>11) / float64(1<<53)
}
