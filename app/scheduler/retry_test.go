package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNext(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseBackoff: 60 * time.Second}

	d := p.Next(0)
	assert.False(t, d.Terminal)
	assert.Equal(t, 1, d.RetryCount)
	assert.Equal(t, 60*time.Second, d.Delay)

	d = p.Next(2)
	assert.False(t, d.Terminal)
	assert.Equal(t, 3, d.RetryCount)
	assert.Equal(t, 240*time.Second, d.Delay)

	d = p.Next(3)
	assert.True(t, d.Terminal)
	assert.Equal(t, 4, d.RetryCount)
	assert.Zero(t, d.Delay)
}

func TestRetryPolicyPostponeDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, RetryPolicy{BaseBackoff: time.Minute}.PostponeDelay())
	assert.Equal(t, 5*time.Second, RetryPolicy{BaseBackoff: 6 * time.Second}.PostponeDelay(), "floor at five seconds")
}

func TestDeviceLimiter(t *testing.T) {
	l := NewDeviceLimiter(2)

	assert.True(t, l.TryAcquire("a"))
	assert.True(t, l.TryAcquire("a"))
	assert.False(t, l.TryAcquire("a"), "limit reached")
	assert.True(t, l.TryAcquire("b"), "devices are independent")

	l.Release("a")
	assert.True(t, l.TryAcquire("a"))
	assert.Equal(t, 2, l.InFlight("a"))
	assert.Equal(t, 1, l.InFlight("b"))

	l.Release("b")
	assert.Zero(t, l.InFlight("b"))
}
