package schedule

import "time"

// Ladder is the fixed retry ladder indexed by 0-based attempt count:
// immediate, 10 minutes, 2 hours, 8 hours, 1 day, 3 days, 5 days. The last
// rung is the final attempt.
var Ladder = []time.Duration{
	0,
	10 * time.Minute,
	2 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
	120 * time.Hour,
}

// NextDelay returns the delay before retry number attempt. The index is
// clamped to the last rung so an arbitrarily large attempt count never
// produces an out-of-range delay or an accidental immediate retry.
func NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(Ladder) {
		attempt = len(Ladder) - 1
	}
	return Ladder[attempt]
}

// Exhausted reports whether the attempt count has walked off the ladder,
// meaning the job must be abandoned and reported instead of retried again.
func Exhausted(attempt int) bool {
	return attempt >= len(Ladder)
}
