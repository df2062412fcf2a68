package autoextract

import (
	"context"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/rs/zerolog"
)

// sevenZipBackend reads 7z archives, split sets included (name.7z.001).
type sevenZipBackend struct {
	encodingHandler EncodingHandler
	logger          zerolog.Logger
}

func newSevenZipBackend(encodingHandler EncodingHandler, logger zerolog.Logger) *sevenZipBackend {
	return &sevenZipBackend{
		encodingHandler: encodingHandler,
		logger:          logger,
	}
}

func (b *sevenZipBackend) open(archivePath, password string) (*sevenzip.ReadCloser, error) {
	if password != "" {
		return sevenzip.OpenReaderWithPassword(archivePath, password)
	}
	return sevenzip.OpenReader(archivePath)
}

func (b *sevenZipBackend) list(_ context.Context, archivePath, password string) (*archiveListing, error) {
	reader, err := b.open(archivePath, password)
	if err != nil {
		return nil, b.handle7zError(err, archivePath, password != "")
	}
	defer reader.Close()

	listing := &archiveListing{}
	for _, file := range reader.File {
		if entry := b.entryName(file); entry != "" {
			listing.Entries = append(listing.Entries, entry)
		}
	}
	return listing, nil
}

func (b *sevenZipBackend) extract(ctx context.Context, req ExtractRequest, w *entryWriter) error {
	reader, err := b.open(req.ArchivePath, req.Password)
	if err != nil {
		return b.handle7zError(err, req.ArchivePath, req.Password != "")
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return classifySourceError(err, false, req.ArchivePath)
		}

		entry := b.entryName(file)
		if w.skip(entry) {
			continue
		}
		info := file.FileInfo()
		if info.IsDir() {
			if err := w.mkdir(entry); err != nil {
				return err
			}
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return b.handle7zError(err, req.ArchivePath, req.Password != "")
		}
		err = w.writeFile(ctx, entry, info.Mode(), info.ModTime(), rc)
		rc.Close()
		if err != nil {
			if se, ok := err.(*sourceError); ok {
				return classifySourceError(se.err, req.Password != "", req.ArchivePath)
			}
			return err
		}
	}
	return nil
}

func (b *sevenZipBackend) entryName(file *sevenzip.File) string {
	decoded, _, err := b.encodingHandler.SmartDecodeFileName(file.Name)
	if err != nil {
		b.logger.Debug().Err(err).Str("entry", file.Name).Msg("Entry name encoding not recognized")
	}
	return normalizeEntry(decoded, file.FileInfo().IsDir())
}

func (b *sevenZipBackend) handle7zError(err error, path string, withPassword bool) error {
	errorMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errorMsg, "no such file"):
		return NewExtractError(ErrArchiveNotFound, "archive does not exist", path, err)
	case isPasswordError(err):
		return NewExtractError(ErrWrongPassword, "7z password rejected", path, err)
	case withPassword && (strings.Contains(errorMsg, "checksum") || strings.Contains(errorMsg, "corrupt")):
		// encrypted headers decrypted with the wrong key look like garbage
		return NewExtractError(ErrWrongPassword, "7z password rejected", path, err)
	case strings.Contains(errorMsg, "unsupported"):
		return NewExtractError(ErrArchiveUnreadable, "unsupported 7z format or method", path, err)
	case strings.Contains(errorMsg, "corrupt"), strings.Contains(errorMsg, "checksum"):
		return NewExtractError(ErrArchiveCorrupt, "7z archive is damaged", path, err)
	default:
		return NewExtractError(ErrArchiveUnreadable, "cannot read 7z archive", path, err)
	}
}
