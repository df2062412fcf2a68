package autoextract

import (
	"context"
	"io"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/rs/zerolog"
)

// rarBackend reads rar v4/v5 archives. Multi-volume sets are followed from
// the first volume.
type rarBackend struct {
	encodingHandler EncodingHandler
	logger          zerolog.Logger
}

func newRarBackend(encodingHandler EncodingHandler, logger zerolog.Logger) *rarBackend {
	return &rarBackend{
		encodingHandler: encodingHandler,
		logger:          logger,
	}
}

func (b *rarBackend) open(archivePath, password string) (*rardecode.ReadCloser, error) {
	var opts []rardecode.Option
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}
	return rardecode.OpenReader(archivePath, opts...)
}

func (b *rarBackend) list(ctx context.Context, archivePath, password string) (*archiveListing, error) {
	reader, err := b.open(archivePath, password)
	if err != nil {
		return nil, b.handleRarError(err, archivePath)
	}
	defer reader.Close()

	listing := &archiveListing{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, classifySourceError(err, false, archivePath)
		}
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, b.handleRarError(err, archivePath)
		}
		if entry := b.entryName(header); entry != "" {
			listing.Entries = append(listing.Entries, entry)
		}
	}
	return listing, nil
}

func (b *rarBackend) extract(ctx context.Context, req ExtractRequest, w *entryWriter) error {
	reader, err := b.open(req.ArchivePath, req.Password)
	if err != nil {
		return b.handleRarError(err, req.ArchivePath)
	}
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return classifySourceError(err, false, req.ArchivePath)
		}
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return b.handleRarError(err, req.ArchivePath)
		}

		entry := b.entryName(header)
		if w.skip(entry) {
			continue
		}
		if header.IsDir {
			if err := w.mkdir(entry); err != nil {
				return err
			}
			continue
		}

		if err := w.writeFile(ctx, entry, header.Mode(), header.ModificationTime, reader); err != nil {
			if se, ok := err.(*sourceError); ok {
				// a bad password on rar surfaces as a checksum failure
				return classifySourceError(se.err, req.Password != "", req.ArchivePath)
			}
			return err
		}
	}
}

func (b *rarBackend) entryName(header *rardecode.FileHeader) string {
	decoded, _, err := b.encodingHandler.SmartDecodeFileName(header.Name)
	if err != nil {
		b.logger.Debug().Err(err).Str("entry", header.Name).Msg("Entry name encoding not recognized")
	}
	return normalizeEntry(decoded, header.IsDir)
}

func (b *rarBackend) handleRarError(err error, path string) error {
	errorMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errorMsg, "no such file"):
		return NewExtractError(ErrArchiveNotFound, "archive does not exist", path, err)
	case isPasswordError(err), strings.Contains(errorMsg, "incorrect"):
		return NewExtractError(ErrWrongPassword, "rar password rejected", path, err)
	case strings.Contains(errorMsg, "volume"):
		return NewExtractError(ErrArchiveUnreadable, "rar volume missing or damaged", path, err)
	case strings.Contains(errorMsg, "checksum"), strings.Contains(errorMsg, "corrupt"), strings.Contains(errorMsg, "bad"):
		return NewExtractError(ErrArchiveCorrupt, "rar archive is damaged", path, err)
	default:
		return NewExtractError(ErrArchiveUnreadable, "cannot read rar archive", path, err)
	}
}
