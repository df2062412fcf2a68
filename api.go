package autoextract

import (
	"context"
	"path/filepath"
)

// ExtractOptions are the knobs of the one-shot Extract call.
type ExtractOptions struct {
	// OutputDir is the destination parent; empty means the archive's directory.
	OutputDir string
	// Passwords are tried before the built-in list.
	Passwords []string
	// MaxDepth bounds nested extraction; zero keeps the default of 3.
	MaxDepth int
	// DeleteSource removes the archive after full success.
	DeleteSource bool
	// Sink receives lifecycle events.
	Sink Sink
}

// Extract runs a default pipeline over one archive.
//
// It detects the format, tries the given passwords followed by a common
// list, extracts nested archives and only creates a wrapping folder when the
// archive holds several loose files.
func Extract(ctx context.Context, archivePath string, options *ExtractOptions) (*ExtractResult, error) {
	if options == nil {
		options = &ExtractOptions{}
	}

	cfg := DefaultExtractConfig()
	cfg.Delete.Enabled = options.DeleteSource
	if options.MaxDepth > 0 {
		cfg.Nested.MaxDepth = options.MaxDepth
	}

	outputDir := options.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(archivePath)
	}

	p, err := New(cfg,
		WithPasswords(ChainPasswords{StaticPasswords(options.Passwords), BuiltinPasswords()}),
		WithSink(options.Sink),
	)
	if err != nil {
		return nil, err
	}
	if err := EnsureDirectoryExists(outputDir); err != nil {
		return nil, classifyFSError(err, outputDir, "cannot create output directory")
	}

	result, err := p.Process(ctx, archivePath, outputDir)
	if result == nil && err == nil {
		return nil, NewExtractError(ErrArchiveNotFound, "archive does not exist", archivePath, nil)
	}
	return result, err
}
