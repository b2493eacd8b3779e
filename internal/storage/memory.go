package storage

import (
	"context"
	"sync"

	"github.com/evraghq/evrag/pkg/models"
)

// MemoryStore keeps everything in memory. Intended for tests and
// single-process evaluation sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]*models.Dataset
	dsKeys   []string
	runs     map[string]*models.EvaluationRun
	runKeys  []string
	results  map[string][]*models.EvaluationResult
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[string]*models.Dataset),
		runs:     make(map[string]*models.EvaluationRun),
		results:  make(map[string][]*models.EvaluationResult),
	}
}

// CreateDataset stores a dataset.
func (s *MemoryStore) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.datasets[ds.ID]; exists {
		return ErrAlreadyExists
	}
	s.datasets[ds.ID] = cloneDataset(ds)
	s.dsKeys = append(s.dsKeys, ds.ID)
	return nil
}

// GetDataset returns a dataset by id.
func (s *MemoryStore) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDataset(ds), nil
}

// ListDatasets returns datasets in insertion order.
func (s *MemoryStore) ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := window(s.dsKeys, limit, offset)
	out := make([]*models.Dataset, 0, len(keys))
	for _, id := range keys {
		if ds, ok := s.datasets[id]; ok {
			out = append(out, cloneDataset(ds))
		}
	}
	return out, nil
}

// DeleteDataset removes a dataset.
func (s *MemoryStore) DeleteDataset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return ErrNotFound
	}
	delete(s.datasets, id)
	for i, k := range s.dsKeys {
		if k == id {
			s.dsKeys = append(s.dsKeys[:i], s.dsKeys[i+1:]...)
			break
		}
	}
	return nil
}

// CreateRun stores a run record.
func (s *MemoryStore) CreateRun(ctx context.Context, run *models.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	s.runs[run.ID] = run.Clone()
	s.runKeys = append(s.runKeys, run.ID)
	return nil
}

// GetRun returns a run by id.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// UpdateRun replaces a run record.
func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// ListRuns returns runs in insertion order, optionally filtered by dataset.
func (s *MemoryStore) ListRuns(ctx context.Context, datasetID string, limit, offset int) ([]*models.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.runKeys
	if datasetID != "" {
		keys = make([]string, 0, len(s.runKeys))
		for _, id := range s.runKeys {
			if run, ok := s.runs[id]; ok && run.DatasetID == datasetID {
				keys = append(keys, id)
			}
		}
	}
	keys = window(keys, limit, offset)
	out := make([]*models.EvaluationRun, 0, len(keys))
	for _, id := range keys {
		if run, ok := s.runs[id]; ok {
			out = append(out, run.Clone())
		}
	}
	return out, nil
}

// CreateResult appends a result to its run.
func (s *MemoryStore) CreateResult(ctx context.Context, result *models.EvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RunID] = append(s.results[result.RunID], cloneResult(result))
	return nil
}

// ListResults returns a run's results in creation order.
func (s *MemoryStore) ListResults(ctx context.Context, runID string) ([]*models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.results[runID]
	out := make([]*models.EvaluationResult, 0, len(stored))
	for _, r := range stored {
		out = append(out, cloneResult(r))
	}
	return out, nil
}

// CountResults returns how many results a run has.
func (s *MemoryStore) CountResults(ctx context.Context, runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results[runID]), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func window(keys []string, limit, offset int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(keys) {
		return nil
	}
	if limit <= 0 || offset+limit > len(keys) {
		return keys[offset:]
	}
	return keys[offset : offset+limit]
}

func cloneDataset(ds *models.Dataset) *models.Dataset {
	c := *ds
	c.Items = make([]models.DatasetItem, len(ds.Items))
	copy(c.Items, ds.Items)
	for i := range c.Items {
		c.Items[i].GroundTruthDocs = append([]string(nil), ds.Items[i].GroundTruthDocs...)
	}
	return &c
}

func cloneResult(r *models.EvaluationResult) *models.EvaluationResult {
	c := *r
	c.RetrievedDocs = append([]models.RetrievedDoc(nil), r.RetrievedDocs...)
	c.HallucinatedSpans = append([]string(nil), r.HallucinatedSpans...)
	c.SignalBreakdown = append([]models.SignalScore(nil), r.SignalBreakdown...)
	if r.RecallAtK != nil {
		c.RecallAtK = make(map[int]float64, len(r.RecallAtK))
		for k, v := range r.RecallAtK {
			c.RecallAtK[k] = v
		}
	}
	if r.PrecisionAtK != nil {
		c.PrecisionAtK = make(map[int]float64, len(r.PrecisionAtK))
		for k, v := range r.PrecisionAtK {
			c.PrecisionAtK[k] = v
		}
	}
	return &c
}
