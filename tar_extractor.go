package autoextract

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"
)

// tarBackend reads tar streams, plain or compressed with gzip, bzip2, xz or
// zstd. Links and device entries are never materialized.
type tarBackend struct {
	format ArchiveFormat
	logger zerolog.Logger
}

func newTarBackend(format ArchiveFormat, logger zerolog.Logger) *tarBackend {
	return &tarBackend{
		format: format,
		logger: logger,
	}
}

// open returns a tar reader and a closer for the file and any decompressor.
func (b *tarBackend) open(archivePath string) (*tar.Reader, func(), error) {
	file, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, NewExtractError(ErrArchiveNotFound, "archive does not exist", archivePath, err)
		}
		return nil, nil, NewExtractError(ErrArchiveUnreadable, "cannot open archive", archivePath, err)
	}

	var stream io.Reader = file
	closers := []func(){func() { file.Close() }}

	switch b.format {
	case FormatTAR:
	case FormatTARGZ:
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, NewExtractError(ErrArchiveUnreadable, "not a gzip stream", archivePath, err)
		}
		stream = gzReader
		closers = append(closers, func() { gzReader.Close() })
	case FormatTARBZ2:
		stream = bzip2.NewReader(file)
	case FormatTARXZ:
		xzReader, err := xz.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, NewExtractError(ErrArchiveUnreadable, "not an xz stream", archivePath, err)
		}
		stream = xzReader
	case FormatTARZST:
		zstdReader, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, NewExtractError(ErrArchiveUnreadable, "not a zstd stream", archivePath, err)
		}
		stream = zstdReader
		closers = append(closers, zstdReader.Close)
	default:
		file.Close()
		return nil, nil, NewExtractError(ErrUnsupportedFormat, fmt.Sprintf("not a tar format: %s", b.format), archivePath, nil)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return tar.NewReader(stream), closeAll, nil
}

func (b *tarBackend) list(ctx context.Context, archivePath, _ string) (*archiveListing, error) {
	reader, closeAll, err := b.open(archivePath)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	listing := &archiveListing{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, classifySourceError(err, false, archivePath)
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewExtractError(ErrArchiveUnreadable, "cannot read tar header", archivePath, err)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			listing.Entries = append(listing.Entries, normalizeEntry(header.Name, true))
		case tar.TypeReg:
			listing.Entries = append(listing.Entries, normalizeEntry(header.Name, false))
		}
	}
	return listing, nil
}

func (b *tarBackend) extract(ctx context.Context, req ExtractRequest, w *entryWriter) error {
	reader, closeAll, err := b.open(req.ArchivePath)
	if err != nil {
		return err
	}
	defer closeAll()

	for {
		if err := ctx.Err(); err != nil {
			return classifySourceError(err, false, req.ArchivePath)
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return NewExtractError(ErrArchiveCorrupt, "cannot read tar header", req.ArchivePath, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			entry := normalizeEntry(header.Name, true)
			if w.skip(entry) {
				continue
			}
			if err := w.mkdir(entry); err != nil {
				return err
			}
		case tar.TypeReg:
			entry := normalizeEntry(header.Name, false)
			if w.skip(entry) {
				continue
			}
			err := w.writeFile(ctx, entry, header.FileInfo().Mode(), header.ModTime, reader)
			if err != nil {
				if se, ok := err.(*sourceError); ok {
					return classifySourceError(se.err, false, req.ArchivePath)
				}
				return err
			}
		default:
			b.logger.Debug().Str("entry", header.Name).Int("type", int(header.Typeflag)).Msg("Skipping non-regular tar entry")
		}
	}
}
