package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldown(ResendCooldown)
	c.now = func() time.Time { return now }

	assert.True(t, c.Ready())
	assert.Equal(t, 0, c.Seconds())

	c.Restart()
	assert.False(t, c.Ready())
	assert.Equal(t, 60, c.Seconds())

	now = now.Add(59500 * time.Millisecond)
	assert.Equal(t, 1, c.Seconds())
	assert.False(t, c.Ready())

	now = now.Add(time.Second)
	assert.True(t, c.Ready())

	c.Restart()
	assert.Equal(t, ResendCooldown, c.Remaining())
}
