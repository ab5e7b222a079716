package signal

import (
	"sync"
	"time"

	"github.com/dkeye/RoomRelay/internal/domain"
)

// RoomRateLimiter is a sliding-window limiter keyed by device.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.DeviceID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time

	lastSweep time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.DeviceID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(device domain.DeviceID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	attempts := rl.history[device]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[device] = fresh
		return false
	}
	rl.history[device] = append(fresh, now)
	return true
}

// sweep drops devices with no attempt inside the current window.
func (rl *RoomRateLimiter) sweep(windowStart time.Time) {
	for device, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, device)
		}
	}
}
