package utils

import (
	"github.com/edaniels/golog"
)

// ErrorThrottle keeps a background loop from spamming the same error. The first occurrence of
// an error is logged at info, identical repeats are counted and reported every RemindEvery
// occurrences at error level.
type ErrorThrottle struct {
	RemindEvery int
	lastError   error
	repeats     int
}

// Observe records the outcome of one loop iteration. A nil err resets the throttle.
func (et *ErrorThrottle) Observe(logger golog.Logger, msg string, err error) {
	if err == nil {
		et.lastError = nil
		et.repeats = 0
		return
	}
	if et.lastError != nil && err.Error() == et.lastError.Error() {
		et.repeats++
	} else {
		logger.Infow(msg, "error", err)
		et.repeats = 0
	}
	if et.RemindEvery > 0 && et.repeats == et.RemindEvery {
		logger.Errorw(msg+" keeps failing", "error", err, "repeats", et.repeats)
		et.repeats = 0
	}
	et.lastError = err
}
