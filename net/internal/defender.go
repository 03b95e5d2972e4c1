package internal

import "time"

// Defender limits how many reads a connection may deliver per second.
type Defender struct {
	windowStart time.Time
	reads       int
	maxReads    int
}

func NewDefender(maxReads int) *Defender {
	return &Defender{
		maxReads: maxReads,
	}
}

// Allow counts one read at now and reports whether it stays within the limit.
// A non-positive limit allows everything.
func (d *Defender) Allow(now time.Time) bool {
	if d.maxReads <= 0 {
		return true
	}
	if now.Sub(d.windowStart) >= time.Second {
		d.windowStart = now
		d.reads = 0
	}
	d.reads++
	return d.reads <= d.maxReads
}
