package autoextract

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ResultHandler receives the outcome of each pooled archive.
type ResultHandler func(archivePath string, result *ExtractResult, err error)

// Pool processes top-level archives concurrently with a fixed number of
// workers. Nested archives stay on the worker of their top-level archive.
type Pool struct {
	pipeline   *Pipeline
	destParent string
	onResult   ResultHandler
	logger     zerolog.Logger

	group    errgroup.Group
	mu       sync.Mutex
	inflight map[string]bool
}

// NewPool creates a pool extracting into destParent with at most workers
// archives at a time.
func NewPool(pipeline *Pipeline, destParent string, workers int, onResult ResultHandler, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		pipeline:   pipeline,
		destParent: destParent,
		onResult:   onResult,
		logger:     logger.With().Str("component", "pool").Logger(),
		inflight:   make(map[string]bool),
	}
	p.group.SetLimit(workers)
	return p
}

// Submit queues an archive, blocking while all workers are busy. It returns
// false when ctx is done or the same archive is already queued or running.
// An archive whose worker only starts after ctx is done is dropped without
// being processed.
func (p *Pool) Submit(ctx context.Context, archivePath string) bool {
	if ctx.Err() != nil {
		return false
	}
	id := absPath(archivePath)

	p.mu.Lock()
	if p.inflight[id] {
		p.mu.Unlock()
		return false
	}
	p.inflight[id] = true
	p.mu.Unlock()

	p.group.Go(func() error {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, id)
			p.mu.Unlock()
		}()

		if ctx.Err() != nil {
			p.logger.Debug().Str("archive", id).Msg("Dropping queued archive after shutdown")
			return nil
		}
		result, err := p.pipeline.Process(ctx, id, p.destParent)
		switch {
		case errors.Is(err, ErrAbandoned):
			p.logger.Debug().Str("archive", id).Msg("Skipping abandoned archive")
		case err != nil:
			p.logger.Warn().Err(err).Str("archive", id).Msg("Archive failed")
		}
		if p.onResult != nil {
			p.onResult(id, result, err)
		}
		return nil
	})
	return true
}

// InFlight reports whether an archive is queued or running.
func (p *Pool) InFlight(archivePath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[absPath(archivePath)]
}

// Wait blocks until every submitted archive is done.
func (p *Pool) Wait() {
	_ = p.group.Wait()
}
