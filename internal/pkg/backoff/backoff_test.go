package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Delay(0))
	assert.Equal(t, time.Second, Delay(1))
	assert.Equal(t, 2*time.Second, Delay(2))
	assert.Equal(t, 30*time.Second, Delay(10), "capped at max")
	assert.Equal(t, 30*time.Second, Delay(64), "huge attempts do not overflow")
	assert.Equal(t, 500*time.Millisecond, Delay(-1))
}
