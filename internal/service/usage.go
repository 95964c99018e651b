package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sakif/magma-calc/internal/model"
	"github.com/sakif/magma-calc/internal/repository"
)

// recentWindow is the span covered by the "last_24h" statistics.
const recentWindow = 24 * time.Hour

// recentEntry is the slice of a journal entry the rolling window needs.
type recentEntry struct {
	at       time.Time
	elapsed  float64
	success  bool
	clientIP string
}

// UsageService keeps running aggregates over the usage journal and appends
// new entries to it.
//
// All-time totals are kept as counters; the last 24 hours are kept as a list
// of entries that Prune trims. Aggregates survive a restart because the
// journal is replayed on construction.
type UsageService struct {
	repo   repository.UsageRepository
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	writable bool

	total     int
	ips       map[string]struct{}
	elapsed   float64
	successes int
	failures  int

	recent []recentEntry
}

// NewUsageService replays repo into memory and returns the service. A nil
// repo keeps statistics in memory only. A replay failure is logged and the
// service starts from whatever was read.
func NewUsageService(ctx context.Context, repo repository.UsageRepository, logger *slog.Logger) *UsageService {
	return newUsageService(ctx, repo, logger, time.Now)
}

func newUsageService(ctx context.Context, repo repository.UsageRepository, logger *slog.Logger, now func() time.Time) *UsageService {
	s := &UsageService{
		repo:     repo,
		logger:   logger,
		now:      now,
		writable: repo != nil,
		ips:      make(map[string]struct{}),
	}

	if repo != nil {
		replayed := 0
		err := repo.Replay(ctx, func(e model.UsageEntry) {
			s.apply(e)
			replayed++
		})
		if err != nil {
			logger.Warn("usage journal replay failed", "error", err, "replayed", replayed)
		} else {
			logger.Debug("usage journal replayed", "entries", replayed)
		}
	}

	return s
}

// Record appends entry to the journal and folds it into the aggregates. The
// first write failure disables persistence for the rest of the process
// lifetime; the aggregates keep updating either way.
func (s *UsageService) Record(ctx context.Context, entry *model.UsageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writable {
		if err := s.repo.Append(ctx, entry); err != nil {
			s.writable = false
			s.logger.Warn("cannot write to usage journal, persistence disabled", "error", err)
		}
	}
	s.apply(*entry)
}

// Persisting reports whether entries are still being written to the journal.
func (s *UsageService) Persisting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// apply folds one entry into the aggregates. Callers hold s.mu, except
// during construction.
func (s *UsageService) apply(e model.UsageEntry) {
	s.total++
	if e.ClientIP != "" {
		s.ips[e.ClientIP] = struct{}{}
	}
	s.elapsed += e.ElapsedSec
	if e.Success {
		s.successes++
	} else {
		s.failures++
	}

	if e.Timestamp.IsZero() || e.Timestamp.Before(s.now().Add(-recentWindow)) {
		return
	}
	s.recent = append(s.recent, recentEntry{
		at:       e.Timestamp,
		elapsed:  e.ElapsedSec,
		success:  e.Success,
		clientIP: e.ClientIP,
	})
}

// Prune drops entries older than the rolling window.
func (s *UsageService) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
}

func (s *UsageService) pruneLocked() {
	cutoff := s.now().Add(-recentWindow)
	kept := s.recent[:0]
	for _, r := range s.recent {
		if !r.at.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	clear(s.recent[len(kept):])
	s.recent = kept
}

// Stats returns the all-time and last-24h summaries. Average elapsed time is
// rounded to milliseconds; an empty window averages to 0.
func (s *UsageService) Stats() model.UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	stats := model.UsageStats{
		AllTime: model.UsageSummary{
			TotalRequests: s.total,
			UniqueIPs:     len(s.ips),
			AvgElapsedSec: average(s.elapsed, s.total),
			Successes:     s.successes,
			Failures:      s.failures,
		},
	}

	recentIPs := make(map[string]struct{})
	var recentElapsed float64
	for _, r := range s.recent {
		if r.clientIP != "" {
			recentIPs[r.clientIP] = struct{}{}
		}
		recentElapsed += r.elapsed
		if r.success {
			stats.Last24h.Successes++
		} else {
			stats.Last24h.Failures++
		}
	}
	stats.Last24h.TotalRequests = len(s.recent)
	stats.Last24h.UniqueIPs = len(recentIPs)
	stats.Last24h.AvgElapsedSec = average(recentElapsed, len(s.recent))

	return stats
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return roundMillis(sum / float64(n))
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
