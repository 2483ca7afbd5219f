package mtproto

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту запросов к Telegram API и учитывает
// паузы после FLOOD_WAIT.
type RateLimiter struct {
	limiter *rate.Limiter

	floodWaitUntil time.Time
	mu             sync.Mutex
}

// NewRateLimiter создаёт лимитер. Для аккуратного сбора достаточно 1-2 rps.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 2.0
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait блокирует до разрешения следующего запроса.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	waitUntil := r.floodWaitUntil
	r.mu.Unlock()

	if time.Now().Before(waitUntil) {
		select {
		case <-time.After(time.Until(waitUntil)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.limiter.Wait(ctx)
}

// SetFloodWait задаёт паузу после ошибки FLOOD_WAIT.
func (r *RateLimiter) SetFloodWait(seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.floodWaitUntil = time.Now().Add(time.Duration(seconds) * time.Second)
}

// floodWaitSeconds извлекает длительность паузы из ошибки FLOOD_WAIT_N.
func floodWaitSeconds(err error) int {
	if err == nil {
		return 0
	}
	str := err.Error()
	parts := strings.Split(str, "FLOOD_WAIT_")
	if len(parts) < 2 {
		return 0
	}
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}
