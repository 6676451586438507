package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/air-quality-collector/internal/airquality"
)

var (
	// ErrNotFound is returned when no run report matches.
	ErrNotFound = errors.New("no run report found")
)

// MemoryStore is a concurrency-safe in-memory history of run reports,
// ordered by start time.
type MemoryStore struct {
	mu sync.RWMutex

	reports []airquality.Report

	// retention configuration
	maxHistory int           // max number of reports kept
	maxAge     time.Duration // optional max age for reports

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends a report and enforces retention.
func (s *MemoryStore) Save(report airquality.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep start-time order even if a slow run finishes after a later one.
	i := len(s.reports)
	for i > 0 && s.reports[i-1].StartedAt.After(report.StartedAt) {
		i--
	}
	s.reports = append(s.reports, airquality.Report{})
	copy(s.reports[i+1:], s.reports[i:])
	s.reports[i] = report

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.reports) > s.maxHistory {
		over := len(s.reports) - s.maxHistory
		s.reports = s.reports[over:]
	}

	// Enforce retention by age. The newest report is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.reports)-1; i++ {
			if !s.reports[i].StartedAt.Before(cutoff) {
				break
			}
		}
		s.reports = s.reports[i:]
	}
}

// Latest returns the most recently started run.
func (s *MemoryStore) Latest() (airquality.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.reports) == 0 {
		return airquality.Report{}, ErrNotFound
	}
	return s.reports[len(s.reports)-1], nil
}

// Get returns the report with the given run id.
func (s *MemoryStore) Get(id string) (airquality.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return airquality.Report{}, ErrNotFound
}

// Range returns all reports started between from and to (inclusive).
func (s *MemoryStore) Range(from, to time.Time) ([]airquality.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []airquality.Report
	for _, r := range s.reports {
		if !r.StartedAt.Before(from) && !r.StartedAt.After(to) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
