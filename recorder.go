package autoextract

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Stats aggregates stored results.
type Stats struct {
	Total          int   `json:"total"`
	Succeeded      int   `json:"succeeded"`
	Failed         int   `json:"failed"`
	Nested         int   `json:"nested"`
	ArchiveBytes   int64 `json:"archive_bytes"`
	ExtractedBytes int64 `json:"extracted_bytes"`
	FilesExtracted int   `json:"files_extracted"`
}

// Store persists extraction results.
type Store interface {
	SaveResult(ctx context.Context, result *ExtractResult) error
	Get(ctx context.Context, id string) (*ExtractResult, error)
	// Children returns the results whose ParentID is parentID.
	Children(ctx context.Context, parentID string) ([]*ExtractResult, error)
	// History returns the most recent results first.
	History(ctx context.Context, limit int) ([]*ExtractResult, error)
	Stats(ctx context.Context) (*Stats, error)
}

// MemoryStore keeps results in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*ExtractResult
	order   []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*ExtractResult)}
}

// SaveResult stores a copy of result, replacing one with the same ID.
func (s *MemoryStore) SaveResult(_ context.Context, result *ExtractResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ID]; !ok {
		s.order = append(s.order, result.ID)
	}
	r := *result
	s.results[result.ID] = &r
	return nil
}

// Get returns the result with id.
func (s *MemoryStore) Get(_ context.Context, id string) (*ExtractResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, NewExtractError(ErrArchiveNotFound, "no such record", id, nil)
	}
	c := *r
	return &c, nil
}

// Children returns the children of parentID in the order they were saved.
func (s *MemoryStore) Children(_ context.Context, parentID string) ([]*ExtractResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ExtractResult
	for _, id := range s.order {
		if r := s.results[id]; r.ParentID == parentID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// History returns up to limit results, newest first. limit <= 0 means all.
func (s *MemoryStore) History(_ context.Context, limit int) ([]*ExtractResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExtractResult, 0, len(s.order))
	for _, id := range s.order {
		c := *s.results[id]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats aggregates all stored results.
func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{}
	for _, r := range s.results {
		st.Add(r)
	}
	return st, nil
}

// Add counts one result.
func (st *Stats) Add(r *ExtractResult) {
	st.Total++
	if r.Success {
		st.Succeeded++
	} else {
		st.Failed++
	}
	if r.NestedLevel > 0 {
		st.Nested++
	}
	st.ArchiveBytes += r.ArchiveSize
	st.ExtractedBytes += r.ExtractedSize
	st.FilesExtracted += r.FilesExtracted
}

// Recorder persists results through a Store.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

// NewRecorder creates a Recorder. A nil store discards results.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "recorder").Logger(),
	}
}

// Record saves result. Failures are logged and returned.
func (r *Recorder) Record(ctx context.Context, result *ExtractResult) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveResult(context.WithoutCancel(ctx), result); err != nil {
		r.logger.Error().Err(err).Str("id", result.ID).Str("archive", result.ArchivePath).Msg("Cannot save extraction record")
		return err
	}
	return nil
}

// Tree rebuilds the nesting tree under a stored result.
func Tree(ctx context.Context, store Store, id string) (*ResultNode, error) {
	root, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildTree(ctx, store, root)
}

// ResultNode is a result with its nested children.
type ResultNode struct {
	Result   *ExtractResult
	Children []*ResultNode
}

func buildTree(ctx context.Context, store Store, result *ExtractResult) (*ResultNode, error) {
	node := &ResultNode{Result: result}
	children, err := store.Children(ctx, result.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		c, err := buildTree(ctx, store, child)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, c)
	}
	return node, nil
}
