package utils

import (
	"errors"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestErrorThrottle(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	throttle := ErrorThrottle{RemindEvery: 3}
	unplugged := errors.New("unplugged")

	for i := 0; i < 7; i++ {
		throttle.Observe(logger, "read failed", unplugged)
	}
	test.That(t, logs.FilterMessage("read failed").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("read failed keeps failing").Len(), test.ShouldEqual, 2)

	throttle.Observe(logger, "read failed", errors.New("timeout"))
	test.That(t, logs.FilterMessage("read failed").Len(), test.ShouldEqual, 2)

	// recovery resets, so the same error is reported afresh
	throttle.Observe(logger, "read failed", nil)
	throttle.Observe(logger, "read failed", errors.New("timeout"))
	test.That(t, logs.FilterMessage("read failed").Len(), test.ShouldEqual, 3)
}
