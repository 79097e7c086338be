package metrics

import (
	"sort"
	"sync"
	"time"
)

// ExecutionMetric records metadata for a single backend call.
type ExecutionMetric struct {
	Endpoint   string
	Method     string
	StatusCode int
	RequestID  string
	LatencyMS  int64
	Failed     bool
	Timestamp  time.Time
}

// Recorder receives call metrics. The plan API client reports every request to it.
type Recorder interface {
	Record(m ExecutionMetric) error
}

// Store keeps recent call metrics in memory. Nothing survives a restart.
type Store struct {
	mu       sync.Mutex
	records  []ExecutionMetric
	capacity int
	now      func() time.Time
}

// DefaultCapacity bounds how many records a Store keeps.
const DefaultCapacity = 5000

// NewStore creates a Store that keeps at most capacity records.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, now: time.Now}
}

// Record saves a metric, evicting the oldest one when full.
func (s *Store) Record(m ExecutionMetric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) >= s.capacity {
		copy(s.records, s.records[1:])
		s.records = s.records[:len(s.records)-1]
	}
	s.records = append(s.records, m)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// DailyUsage represents call totals for a single day.
type DailyUsage struct {
	Date            string
	TotalCalls      int
	TotalFailures   int
	AvgLatencyMS    int64
	SlowestCallMS   int64
	SlowestEndpoint string
}

// GetDailyUsage retrieves usage for the last N days, oldest first.
func (s *Store) GetDailyUsage(days int) []DailyUsage {
	since := s.now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[string]*DailyUsage)
	sums := make(map[string]int64)
	for _, r := range s.records {
		if r.Timestamp.Before(since) {
			continue
		}
		day := r.Timestamp.UTC().Format("2006-01-02")
		u, ok := byDay[day]
		if !ok {
			u = &DailyUsage{Date: day}
			byDay[day] = u
		}
		u.TotalCalls++
		if r.Failed {
			u.TotalFailures++
		}
		sums[day] += r.LatencyMS
		if r.LatencyMS > u.SlowestCallMS {
			u.SlowestCallMS = r.LatencyMS
			u.SlowestEndpoint = r.Endpoint
		}
	}

	results := make([]DailyUsage, 0, len(byDay))
	for day, u := range byDay {
		u.AvgLatencyMS = sums[day] / int64(u.TotalCalls)
		results = append(results, *u)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Date < results[j].Date })
	return results
}

// Cleanup removes records older than the specified number of days and
// returns how many were removed.
func (s *Store) Cleanup(olderThanDays int) int64 {
	threshold := s.now().UTC().AddDate(0, 0, -olderThanDays)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.Timestamp.Before(threshold) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed
}

// MapCall builds an ExecutionMetric from the outcome of one HTTP call. The
// timestamp is left for Record to fill in.
func MapCall(method, endpoint, requestID string, status int, latency time.Duration, err error) ExecutionMetric {
	return ExecutionMetric{
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: status,
		RequestID:  requestID,
		LatencyMS:  latency.Milliseconds(),
		Failed:     err != nil || status >= 400,
	}
}
