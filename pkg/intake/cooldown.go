package intake

import (
	"sync"
	"time"
)

// ResendCooldown is how long a client waits before asking for another passcode.
const ResendCooldown = 60 * time.Second

// Cooldown is a client-side resend countdown. It is a courtesy to the user
// and the gateway, not a security control; the server rate limits separately.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	until  time.Time
	now    func() time.Time
}

// NewCooldown creates a countdown of the given period that starts ready.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, now: time.Now}
}

// Restart begins a new countdown from now.
func (c *Cooldown) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = c.now().Add(c.period)
}

// Remaining returns the time left, zero once ready.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	left := c.until.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// Ready reports whether a resend is allowed.
func (c *Cooldown) Ready() bool {
	return c.Remaining() == 0
}

// Seconds returns the remaining whole seconds, rounded up for display.
func (c *Cooldown) Seconds() int {
	left := c.Remaining()
	return int((left + time.Second - 1) / time.Second)
}
