package autoextract

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxFailures is the number of consecutive failures after which an
// archive is abandoned.
const DefaultMaxFailures = 3

// FailureState is the retry state of one archive.
type FailureState string

const (
	StateClean     FailureState = "clean"
	StateFailing   FailureState = "failing"
	StateAbandoned FailureState = "abandoned"
)

// FailureRecord is the failure history of one archive identity.
type FailureRecord struct {
	Identity    string    `json:"identity"`
	Count       int       `json:"count"`
	LastType    ErrorType `json:"last_type"`
	LastReason  string    `json:"last_reason"`
	LastFailure time.Time `json:"last_failure"`
	Abandoned   bool      `json:"abandoned"`
}

// State derives the state from the record.
func (r FailureRecord) State() FailureState {
	switch {
	case r.Abandoned:
		return StateAbandoned
	case r.Count > 0:
		return StateFailing
	}
	return StateClean
}

// FailureTracker counts consecutive failures per archive identity.
// The identity is the cleaned absolute path.
//
//	Clean --failure--> Failing(1) --failure--> ... Failing(n) --n >= max--> Abandoned
//	Failing(n) --success--> Clean
//	Abandoned --Reset--> Clean
//
// Failures typed ErrInsufficientDiskSpace or ErrCancelled do not count.
type FailureTracker struct {
	mu       sync.Mutex
	max      int
	records  map[string]*FailureRecord
	onChange func(record FailureRecord, cleared bool)
	now      func() time.Time
}

// NewFailureTracker creates a tracker abandoning archives after maxFailures
// consecutive failures.
func NewFailureTracker(maxFailures int) *FailureTracker {
	if maxFailures < 1 {
		maxFailures = DefaultMaxFailures
	}
	return &FailureTracker{
		max:     maxFailures,
		records: make(map[string]*FailureRecord),
		now:     time.Now,
	}
}

// OnChange registers fn to be called after every change, with cleared set
// when the record was removed. fn runs outside the tracker lock.
func (t *FailureTracker) OnChange(fn func(record FailureRecord, cleared bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// MaxFailures returns the ceiling.
func (t *FailureTracker) MaxFailures() int {
	return t.max
}

// State returns the state and failure count of an archive.
func (t *FailureTracker) State(archivePath string) (FailureState, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[absPath(archivePath)]
	if !ok {
		return StateClean, 0
	}
	return rec.State(), rec.Count
}

// Record returns a copy of the archive's record.
func (t *FailureTracker) Record(archivePath string) (FailureRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[absPath(archivePath)]
	if !ok {
		return FailureRecord{}, false
	}
	return *rec, true
}

// ShouldAttempt reports whether the archive may be processed automatically.
func (t *FailureTracker) ShouldAttempt(archivePath string) bool {
	state, _ := t.State(archivePath)
	return state != StateAbandoned
}

// RecordFailure counts a failure and returns the new state.
func (t *FailureTracker) RecordFailure(archivePath string, err error) FailureState {
	errType := ErrorTypeOf(err)
	id := absPath(archivePath)

	t.mu.Lock()
	rec, ok := t.records[id]
	if errType == ErrInsufficientDiskSpace || errType == ErrCancelled {
		t.mu.Unlock()
		if !ok {
			return StateClean
		}
		return rec.State()
	}
	if !ok {
		rec = &FailureRecord{Identity: id}
		t.records[id] = rec
	}
	rec.Count++
	rec.LastType = errType
	if err != nil {
		rec.LastReason = err.Error()
	}
	rec.LastFailure = t.now()
	rec.Abandoned = rec.Count >= t.max

	snapshot := *rec
	hook := t.onChange
	t.mu.Unlock()

	if hook != nil {
		hook(snapshot, false)
	}
	return snapshot.State()
}

// RecordSuccess clears the archive's record.
func (t *FailureTracker) RecordSuccess(archivePath string) {
	t.clear(absPath(archivePath))
}

// Reset clears the record, so an abandoned archive is attempted again.
func (t *FailureTracker) Reset(archivePath string) {
	t.clear(absPath(archivePath))
}

func (t *FailureTracker) clear(id string) {
	t.mu.Lock()
	_, ok := t.records[id]
	delete(t.records, id)
	hook := t.onChange
	t.mu.Unlock()

	if ok && hook != nil {
		hook(FailureRecord{Identity: id}, true)
	}
}

// Snapshot returns copies of all records sorted by identity.
func (t *FailureTracker) Snapshot() []FailureRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FailureRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Restore loads records, replacing any with the same identity. The change
// hook is not called.
func (t *FailureTracker) Restore(records []FailureRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		if rec.Identity == "" || rec.Count <= 0 {
			continue
		}
		r := rec
		r.Abandoned = r.Abandoned || r.Count >= t.max
		t.records[r.Identity] = &r
	}
}
