package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aqi-service/models"
)

type countyKey struct {
	county string
	state  string
}

// MemoryStore holds history and the prediction log in process memory
type MemoryStore struct {
	samples     map[countyKey]map[string]models.AqiSample // key is county, then date
	predictions []models.PredictionRecord
	mutex       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples: make(map[countyKey]map[string]models.AqiSample),
	}
}

// Driver returns "memory"
func (s *MemoryStore) Driver() string { return "memory" }

// UpsertSamples adds or replaces samples keyed by county, state and date
func (s *MemoryStore) UpsertSamples(_ context.Context, samples []models.AqiSample) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, sample := range samples {
		key := countyKey{sample.County, sample.State}

		// Check if we already have data for this county
		if _, exists := s.samples[key]; !exists {
			s.samples[key] = make(map[string]models.AqiSample)
		}
		s.samples[key][sample.Date] = sample
	}
	return len(samples), nil
}

// ListCounties returns every county with data, optionally limited to one state
func (s *MemoryStore) ListCounties(_ context.Context, state string) ([]models.County, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counties := make([]models.County, 0, len(s.samples))
	for key := range s.samples {
		if state != "" && key.state != state {
			continue
		}
		counties = append(counties, models.NewCounty(key.county, key.state))
	}
	models.SortCounties(counties)
	return counties, nil
}

// GetHistory returns the most recent days samples in ascending date order
func (s *MemoryStore) GetHistory(_ context.Context, county, state string, days int) ([]models.AqiSample, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	byDate, exists := s.samples[countyKey{county, state}]
	if !exists {
		return []models.AqiSample{}, nil
	}

	history := make([]models.AqiSample, 0, len(byDate))
	for _, sample := range byDate {
		history = append(history, sample)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })

	if days > 0 && len(history) > days {
		history = history[len(history)-days:]
	}
	return history, nil
}

// SavePredictions appends records to the prediction log
func (s *MemoryStore) SavePredictions(_ context.Context, records []models.PredictionRecord) error {
	prepared := prepareRecords(records)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.predictions = append(s.predictions, prepared...)
	return nil
}

// ListPredictions returns matching records, newest first
func (s *MemoryStore) ListPredictions(_ context.Context, filter PredictionFilter) ([]models.PredictionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]models.PredictionRecord, 0)
	for _, r := range s.predictions {
		if filter.County != "" && r.County != filter.County {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CollectedAt.After(out[j].CollectedAt) })

	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PrunePredictions removes records collected before the cutoff
func (s *MemoryStore) PrunePredictions(_ context.Context, before time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	kept := s.predictions[:0]
	prunedCount := 0
	for _, r := range s.predictions {
		if r.CollectedAt.Before(before) {
			prunedCount++
			continue
		}
		kept = append(kept, r)
	}
	s.predictions = kept
	return prunedCount, nil
}

// Migrate is a no-op for the memory store
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close releases nothing
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
