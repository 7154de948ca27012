package swgate

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// rateLimitedLogger drops warnings that arrive within interval of the last
// one it let through, counting what it dropped.
type rateLimitedLogger struct {
	log      *zap.Logger
	interval time.Duration

	mu         sync.Mutex
	lastAt     time.Time
	suppressed int
}

func newRateLimitedLogger(log *zap.Logger, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{log: log, interval: interval}
}

func (l *rateLimitedLogger) Warn(msg string, fields ...zap.Field) {
	l.mu.Lock()
	now := time.Now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		l.suppressed++
		l.mu.Unlock()
		return
	}
	l.lastAt = now
	if l.suppressed > 0 {
		fields = append(fields, zap.Int("suppressed", l.suppressed))
		l.suppressed = 0
	}
	l.mu.Unlock()
	l.log.Warn(msg, fields...)
}
