package probe

import "time"

// scheduler drives the periodic resend cadence while a session is ready. It
// does not schedule the first send; the session sends immediately on entering
// the ready state and the scheduler only governs the sends after that.
//
// The scheduler is owned by the session's event loop: the loop selects on the
// armed channel, so a tick pending at cancellation is simply never observed.
type scheduler struct {
	ticker *time.Ticker
}

// arm starts the cadence and returns the tick channel. Re-arming replaces any
// previous cadence.
func (s *scheduler) arm(interval time.Duration) <-chan time.Time {
	s.cancel()
	s.ticker = time.NewTicker(interval)
	return s.ticker.C
}

// cancel stops the cadence. Idempotent; no tick fires after cancel returns.
func (s *scheduler) cancel() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
