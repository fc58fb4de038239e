package renderer

import "sync"

// ScanCursor hands out coarse scan positions in [0, n) to workers in
// round-robin order, wrapping around at the end
type ScanCursor struct {
	mu  sync.Mutex
	pos int
	n   int
}

// NewScanCursor creates a cursor over n positions. A cursor over zero
// positions always returns 0.
func NewScanCursor(n int) *ScanCursor {
	return &ScanCursor{n: n}
}

// Next returns the next position
func (c *ScanCursor) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		return 0
	}
	p := c.pos
	c.pos++
	if c.pos == c.n {
		c.pos = 0
	}
	return p
}
