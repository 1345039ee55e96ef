// Package sim provides the simulation clock and scenario configuration.
package sim

// Clock is the shared simulation clock. Every component that dates machines,
// contracts, or offers holds a reference to the same Clock; nothing reads a
// process-wide "current period" global.
type Clock struct {
	period int
}

// NewClock creates a clock at period 0.
func NewClock() *Clock {
	return &Clock{}
}

// Period returns the current period number.
func (c *Clock) Period() int {
	return c.period
}

// Advance moves the clock to the next period. Only the sector driver calls
// this, once per period, after every firm has closed.
func (c *Clock) Advance() {
	c.period++
}
