package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownFlag_RequestIsIdempotentAndVisible(t *testing.T) {
	var flag ShutdownFlag
	assert.False(t, flag.Requested())

	flag.Request()
	assert.True(t, flag.Requested())

	flag.Request()
	assert.True(t, flag.Requested())
}
