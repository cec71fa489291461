package wheeled

import (
	"testing"

	testutilsext "github.com/flagbot-robotics/flagbot/testutils"
)

func TestMain(m *testing.M) {
	testutilsext.VerifyTestMain(m)
}
