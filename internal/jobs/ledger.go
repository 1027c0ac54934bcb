package jobs

import "sync"

// Ledger is the authoritative in-memory store of job records. It is the single
// synchronization point between the intake handler and the orchestrator:
// records are stored by value, so every Add/Update replaces the whole record
// atomically per key and callers always work on private copies.
type Ledger struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{jobs: make(map[string]Job)}
}

// Add inserts (or replaces) a job record.
func (l *Ledger) Add(job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs[job.ID] = *job
}

// Get returns a copy of the job, or nil if unknown.
func (l *Ledger) Get(id string) *Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.jobs[id]
	if !ok {
		return nil
	}
	return &job
}

// Update writes the caller's copy back; last writer wins per key.
func (l *Ledger) Update(job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs[job.ID] = *job
}

// Pending returns copies of every job that still needs orchestrator work
// (Queued, Uploading or Processing).
func (l *Ledger) Pending() []*Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var pending []*Job
	for _, job := range l.jobs {
		if !job.Status.Terminal() {
			j := job
			pending = append(pending, &j)
		}
	}
	return pending
}
