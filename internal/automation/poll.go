package automation

import (
	"context"
	"time"
)

// Poller checks a condition at a fixed interval for a bounded number of
// attempts. Every wait point in the driver goes through it.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

// PollFor returns a Poller that gives up after roughly total.
func PollFor(total, interval time.Duration) Poller {
	if interval <= 0 {
		interval = time.Second
	}
	attempts := int(total / interval)
	if attempts < 1 {
		attempts = 1
	}
	return Poller{Interval: interval, MaxAttempts: attempts}
}

// Until calls cond until it returns true, it returns an error, ctx is done,
// or MaxAttempts is reached (ErrPollTimeout). The first check happens after
// one interval.
func (p Poller) Until(ctx context.Context, cond func(ctx context.Context) (bool, error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrPollTimeout
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
