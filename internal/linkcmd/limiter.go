package linkcmd

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter throttles code redemption per chat user. Idle limiters are
// swept once the map grows past sweepAt.
type attemptLimiter struct {
	mu      sync.Mutex
	perMin  int
	users   map[int64]*rate.Limiter
	sweepAt int
	now     func() time.Time
}

func newAttemptLimiter(perMin int) *attemptLimiter {
	l := &attemptLimiter{users: map[int64]*rate.Limiter{}, sweepAt: 1024, now: time.Now}
	l.setRate(perMin)
	return l
}

// setRate drops existing limiters so the new rate applies at once.
func (l *attemptLimiter) setRate(perMin int) {
	if perMin <= 0 {
		perMin = 5
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if perMin == l.perMin {
		return
	}
	l.perMin = perMin
	l.users = map[int64]*rate.Limiter{}
}

func (l *attemptLimiter) allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	lim := l.users[userID]
	if lim == nil {
		if len(l.users) >= l.sweepAt {
			l.sweepLocked(now)
		}
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
		l.users[userID] = lim
	}
	return lim.AllowN(now, 1)
}

func (l *attemptLimiter) sweepLocked(now time.Time) {
	for id, lim := range l.users {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.users, id)
		}
	}
}
