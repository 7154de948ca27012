package swgate

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// responseStats aggregates served response sizes between stats log lines.
type responseStats struct {
	mu       sync.Mutex
	count    uint64
	total    uint64
	min      uint64
	max      uint64
	bySource map[string]uint64
}

func newResponseStats() *responseStats {
	return &responseStats{bySource: map[string]uint64{}}
}

func (s *responseStats) Observe(resp *Response) {
	n := uint64(len(resp.Body))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || n < s.min {
		s.min = n
	}
	if n > s.max {
		s.max = n
	}
	s.count++
	s.total += n
	s.bySource[resp.Source()]++
}

type statsSnapshot struct {
	Count    uint64
	MinBytes uint64
	AvgBytes uint64
	MaxBytes uint64
	BySource map[string]uint64
}

// Snapshot returns the totals since the last Snapshot and resets them.
func (s *responseStats) Snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := statsSnapshot{Count: s.count, MinBytes: s.min, MaxBytes: s.max, BySource: s.bySource}
	if s.count > 0 {
		out.AvgBytes = s.total / s.count
	}
	s.count, s.total, s.min, s.max = 0, 0, 0, 0
	s.bySource = map[string]uint64{}
	return out
}

func (ss statsSnapshot) sourcesString() string {
	keys := make([]string, 0, len(ss.BySource))
	for k := range ss.BySource {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatUint(ss.BySource[k], 10))
	}
	return strings.Join(parts, " ")
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	ss := s.stats.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	names, err := s.caches.Keys(ctx)
	if err != nil {
		s.log.Warn("stats: list caches", zap.Error(err))
	}
	s.log.Info("stats",
		zap.Strings("caches", names),
		zap.Uint64("served", ss.Count),
		zap.String("sources", ss.sourcesString()),
		zap.String("respMin", formatBytes(ss.MinBytes)),
		zap.String("respAvg", formatBytes(ss.AvgBytes)),
		zap.String("respMax", formatBytes(ss.MaxBytes)),
	)
}
