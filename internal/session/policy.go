package session

// Policy accumulates evidence about the stored session and decides when
// negative evidence is enough to consider it expired.
type Policy interface {
	// Fail records one bad observation and reports whether the session
	// should now be considered logged out.
	Fail() bool
	// Succeed records one good observation.
	Succeed()
	// Reset discards all accumulated evidence.
	Reset()
	// Pending is the number of bad observations not yet acted upon.
	Pending() int
}

// NewPolicy returns the immediate policy for threshold <= 1 and a debounced
// policy otherwise.
func NewPolicy(threshold int) Policy {
	if threshold <= 1 {
		return &Immediate{}
	}
	return &Debounced{Threshold: threshold}
}

// Immediate flips on the first bad observation.
type Immediate struct{}

func (*Immediate) Fail() bool   { return true }
func (*Immediate) Succeed()     {}
func (*Immediate) Reset()       {}
func (*Immediate) Pending() int { return 0 }

// Debounced flips only after Threshold consecutive bad observations.
type Debounced struct {
	Threshold int
	fails     int
}

func (d *Debounced) Fail() bool {
	d.fails++
	if d.fails >= d.Threshold {
		d.fails = 0
		return true
	}
	return false
}

func (d *Debounced) Succeed() { d.fails = 0 }

func (d *Debounced) Reset() { d.fails = 0 }

func (d *Debounced) Pending() int { return d.fails }
