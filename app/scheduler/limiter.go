package scheduler

import "sync"

// DeviceLimiter caps concurrent in-flight deliveries per device. Acquire is
// non-blocking: a denied attempt is deferred by the caller instead of queued.
type DeviceLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func NewDeviceLimiter(limit int) *DeviceLimiter {
	if limit <= 0 {
		limit = 5
	}
	return &DeviceLimiter{limit: limit, counts: make(map[string]int)}
}

// TryAcquire reserves a delivery slot for the device, reporting success
func (l *DeviceLimiter) TryAcquire(device string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[device] >= l.limit {
		return false
	}
	l.counts[device]++
	return true
}

// Release frees a previously acquired slot
func (l *DeviceLimiter) Release(device string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[device] <= 1 {
		delete(l.counts, device)
		return
	}
	l.counts[device]--
}

// InFlight returns the device's current slot usage
func (l *DeviceLimiter) InFlight(device string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[device]
}
