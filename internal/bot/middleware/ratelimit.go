package middleware

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// RateLimiter ограничивает количество команд на пользователя:
// limit команд за window, с пополнением по одной.
type RateLimiter struct {
	limiters *xsync.MapOf[int64, *userLimiter]
	limit    int
	every    rate.Limit
	idleTTL  time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type userLimiter struct {
	lim      *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter создаёт лимитер. Нулевой или отрицательный limit выключает ограничение.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: xsync.NewMapOf[int64, *userLimiter](),
		limit:    limit,
		idleTTL:  window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if limit > 0 && window > 0 {
		rl.every = rate.Every(window / time.Duration(limit))
	} else {
		rl.every = rate.Inf
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Done закрывается после Close.
func (rl *RateLimiter) Done() <-chan struct{} {
	return rl.stopCh
}

// Allow сообщает, можно ли выполнить команду пользователя сейчас.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.every == rate.Inf {
		return true
	}
	now := rl.now()
	ul, _ := rl.limiters.LoadOrCompute(userID, func() *userLimiter {
		return &userLimiter{lim: rate.NewLimiter(rl.every, rl.limit)}
	})
	ul.mu.Lock()
	ul.lastSeen = now
	ul.mu.Unlock()
	return ul.lim.AllowN(now, 1)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

// evictIdle удаляет лимитеры пользователей, не присылавших команд дольше окна:
// их корзина к этому моменту уже полная.
func (rl *RateLimiter) evictIdle() {
	cutoff := rl.now().Add(-rl.idleTTL)
	rl.limiters.Range(func(userID int64, ul *userLimiter) bool {
		ul.mu.Lock()
		idle := ul.lastSeen.Before(cutoff)
		ul.mu.Unlock()
		if idle {
			rl.limiters.Delete(userID)
		}
		return true
	})
}

// Len возвращает число отслеживаемых пользователей.
func (rl *RateLimiter) Len() int {
	return rl.limiters.Size()
}
