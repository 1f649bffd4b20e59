package memory

import (
	"sync"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
)

// logRepository is an in-memory logger.Repository for tests and --no-db
// mode.
type logRepository struct {
	mutex   sync.RWMutex
	entries []*logger.Entry
}

// NewLogRepository builds an empty in-memory log repository.
func NewLogRepository() logger.Repository {
	return &logRepository{}
}

func (r *logRepository) SaveLogs(entries []*logger.Entry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *logRepository) GetLogs(runID string, limit, offset int) ([]*logger.Entry, error) {
	return r.filter(func(e *logger.Entry) bool { return e.RunID() == runID }, limit, offset)
}

func (r *logRepository) GetStepLogs(runID, stepName string, limit, offset int) ([]*logger.Entry, error) {
	return r.filter(func(e *logger.Entry) bool { return e.RunID() == runID && e.StepName() == stepName }, limit, offset)
}

func (r *logRepository) filter(match func(*logger.Entry) bool, limit, offset int) ([]*logger.Entry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var matched []*logger.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if match(r.entries[i]) {
			matched = append(matched, r.entries[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *logRepository) DeleteLogs(runID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.RunID() != runID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}
