package persist

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus is the state of the latest save of a document.
type JobStatus string

const (
	StatusQueued JobStatus = "queued"
	StatusSaving JobStatus = "saving"
	StatusSaved  JobStatus = "saved"
	StatusFailed JobStatus = "failed"
)

// SaveJob tracks saving of one document. A document has one job; every
// submission reuses it.
type SaveJob struct {
	mu sync.Mutex

	DocID       string
	Status      JobStatus
	Attempts    int
	ContentHash string
	SavedAt     time.Time
	UpdatedAt   time.Time

	lastErr string
}

// SetStatus updates job status atomically.
func (j *SaveJob) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
	switch status {
	case StatusQueued:
		j.Attempts = 0
	case StatusSaved:
		j.SavedAt = j.UpdatedAt
		j.lastErr = ""
	}
}

// StartAttempt marks a save attempt for the given content.
func (j *SaveJob) StartAttempt(contentHash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusSaving
	j.Attempts++
	j.ContentHash = contentHash
	j.UpdatedAt = time.Now()
}

// Fail records a failed attempt. final marks the job failed; otherwise it
// stays in saving while a retry waits.
func (j *SaveJob) Fail(err error, final bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastErr = err.Error()
	if final {
		j.Status = StatusFailed
	}
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	DocID       string    `json:"doc_id"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	ContentHash string    `json:"content_hash,omitempty"`
	Error       string    `json:"error,omitempty"`
	SavedAt     time.Time `json:"saved_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *SaveJob) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		DocID:       j.DocID,
		Status:      j.Status,
		Attempts:    j.Attempts,
		ContentHash: j.ContentHash,
		Error:       j.lastErr,
		SavedAt:     j.SavedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func (j *SaveJob) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*SaveJob
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*SaveJob),
		ttl:  ttl,
	}
}

// Acquire returns the job for docID, creating it if needed.
func (s *JobStore) Acquire(docID string) *SaveJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[docID]
	if !ok {
		j = &SaveJob{DocID: docID, UpdatedAt: time.Now()}
		s.jobs[docID] = j
	}
	return j
}

func (s *JobStore) Get(docID string) *SaveJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[docID]
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status != StatusSaved && snap.Status != StatusFailed {
			continue
		}
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
