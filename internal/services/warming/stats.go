package warming

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// MetadataSubjectKey is the event metadata key carrying the warmed subject.
const MetadataSubjectKey = "subject_id"

// StatsTracker keeps a fixed-capacity ring of warming events plus the cache
// hit/miss counters. Every statistic is derived from the ring at read time;
// nothing is aggregated incrementally, so eviction can never skew totals.
type StatsTracker struct {
	mu          sync.Mutex
	capacity    int
	events      []models.WarmingEvent
	head        int
	size        int
	hits        int64
	misses      int64
	perReadCost float64
	logger      arbor.ILogger
}

// NewStatsTracker creates a tracker bounded to capacity events. perReadCost
// is the modeled remote read cost avoided by one cache hit.
func NewStatsTracker(capacity int, perReadCost float64, logger arbor.ILogger) *StatsTracker {
	if capacity <= 0 {
		capacity = 500
	}
	return &StatsTracker{
		capacity:    capacity,
		events:      make([]models.WarmingEvent, capacity),
		perReadCost: perReadCost,
		logger:      logger,
	}
}

// RecordEvent appends one event, evicting the oldest when the ring is full.
func (s *StatsTracker) RecordEvent(category string, duration time.Duration, success bool, err error, metadata map[string]string) models.WarmingEvent {
	event := models.WarmingEvent{
		Category:  category,
		Duration:  duration,
		Success:   success,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[(s.head+s.size)%s.capacity] = event
	if s.size < s.capacity {
		s.size++
	} else {
		s.head = (s.head + 1) % s.capacity
	}
	return event
}

// RecordCacheHit counts one read served from the cache.
func (s *StatsTracker) RecordCacheHit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

// RecordCacheMiss counts one read that had to go to the remote service.
func (s *StatsTracker) RecordCacheMiss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
}

// Events returns the retained history, oldest first.
func (s *StatsTracker) Events() []models.WarmingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Stats derives statistics from the retained events.
func (s *StatsTracker) Stats(opts models.StatsOptions) models.WarmingStats {
	s.mu.Lock()
	events := s.snapshot()
	hits, misses := s.hits, s.misses
	s.mu.Unlock()

	filtered := events[:0:0]
	for _, event := range events {
		if opts.Category != "" && event.Category != opts.Category {
			continue
		}
		if !opts.Since.IsZero() && event.Timestamp.Before(opts.Since) {
			continue
		}
		filtered = append(filtered, event)
	}

	stats := models.WarmingStats{
		TotalEvents:  len(filtered),
		SuccessRate:  100, // no observations yet reads as healthy
		HitRate:      hitRate(hits, misses),
		CacheHits:    hits,
		CacheMisses:  misses,
		HistoryBound: s.capacity,
	}

	if len(filtered) > 0 {
		var total time.Duration
		stats.MinDuration = filtered[0].Duration
		stats.OldestEvent = filtered[0].Timestamp
		stats.NewestEvent = filtered[len(filtered)-1].Timestamp
		byCategory := make(map[string]models.CategoryStats)

		for _, event := range filtered {
			if event.Success {
				stats.Successes++
			} else {
				stats.Failures++
			}
			total += event.Duration
			if event.Duration < stats.MinDuration {
				stats.MinDuration = event.Duration
			}
			if event.Duration > stats.MaxDuration {
				stats.MaxDuration = event.Duration
			}

			cat := byCategory[event.Category]
			cat.Count++
			if event.Success {
				cat.Successes++
			}
			cat.AvgDuration += event.Duration
			byCategory[event.Category] = cat
		}

		stats.AvgDuration = total / time.Duration(len(filtered))
		stats.SuccessRate = float64(stats.Successes) / float64(len(filtered)) * 100

		for name, cat := range byCategory {
			cat.SuccessRate = float64(cat.Successes) / float64(cat.Count) * 100
			cat.AvgDuration /= time.Duration(cat.Count)
			byCategory[name] = cat
		}
		stats.ByCategory = byCategory

		if span := stats.NewestEvent.Sub(stats.OldestEvent); span > 0 {
			stats.PerMinute = float64(len(filtered)) / span.Minutes()
		} else {
			stats.PerMinute = float64(len(filtered))
		}
	}

	if opts.IncludeSavings {
		stats.CostSavings = &models.CostSavings{
			CachedReads: hits,
			PerReadCost: s.perReadCost,
			Estimated:   float64(hits) * s.perReadCost,
		}
	}
	if opts.IncludePatterns {
		stats.Pattern = detectPattern(filtered)
	}

	return stats
}

// TopSubjects returns the n most frequent subjects in the retained history.
// Ties break lexically so the result is stable.
func (s *StatsTracker) TopSubjects(n int) []models.SubjectCount {
	s.mu.Lock()
	events := s.snapshot()
	s.mu.Unlock()
	return topSubjects(events, n)
}

// PruneBefore drops retained events older than the cutoff and reports how
// many were removed. The ring itself already bounds memory; this is the
// age-based compaction run by maintenance.
func (s *StatsTracker) PruneBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.WarmingEvent, 0, s.size)
	for _, event := range s.snapshot() {
		if event.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, event)
	}

	dropped := s.size - len(kept)
	if dropped > 0 {
		s.head = 0
		s.size = len(kept)
		copy(s.events, kept)
		s.logger.Debug().Int("dropped", dropped).Msg("Pruned warming history")
	}
	return dropped
}

// Cleanup empties the history. Used on shutdown.
func (s *StatsTracker) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.size = 0
}

// snapshot copies the ring oldest-first. Caller holds the mutex.
func (s *StatsTracker) snapshot() []models.WarmingEvent {
	out := make([]models.WarmingEvent, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.events[(s.head+i)%s.capacity]
	}
	return out
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 100
	}
	return float64(hits) / float64(hits+misses) * 100
}

// detectPattern finds the most frequent metadata combination and the
// subjects driving it. Nil when no event carries metadata.
func detectPattern(events []models.WarmingEvent) *models.WarmingPattern {
	type bucket struct {
		count    int
		metadata map[string]string
		events   []models.WarmingEvent
	}
	buckets := make(map[string]*bucket)

	for _, event := range events {
		if len(event.Metadata) == 0 {
			continue
		}
		fp := fingerprint(event.Metadata)
		b := buckets[fp]
		if b == nil {
			b = &bucket{metadata: event.Metadata}
			buckets[fp] = b
		}
		b.count++
		b.events = append(b.events, event)
	}
	if len(buckets) == 0 {
		return nil
	}

	var bestFP string
	for fp, b := range buckets {
		if bestFP == "" || b.count > buckets[bestFP].count || (b.count == buckets[bestFP].count && fp < bestFP) {
			bestFP = fp
		}
	}

	best := buckets[bestFP]
	return &models.WarmingPattern{
		Fingerprint: bestFP,
		Count:       best.count,
		Metadata:    best.metadata,
		TopSubjects: topSubjects(best.events, 3),
	}
}

// fingerprint renders metadata as a stable sorted key=value string.
func fingerprint(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, metadata[k]))
	}
	return strings.Join(parts, ",")
}

func topSubjects(events []models.WarmingEvent, n int) []models.SubjectCount {
	if n <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, event := range events {
		if subject := event.Metadata[MetadataSubjectKey]; subject != "" {
			counts[subject]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]models.SubjectCount, 0, len(counts))
	for subject, count := range counts {
		ranked = append(ranked, models.SubjectCount{SubjectID: subject, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].SubjectID < ranked[j].SubjectID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
