package autoextract

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	encryptedzip "github.com/yeka/zip"
)

// archiveListing is what a backend reports about an archive's contents.
type archiveListing struct {
	Entries   []string
	Encrypted bool
}

// formatBackend reads one archive format.
type formatBackend interface {
	list(ctx context.Context, archivePath, password string) (*archiveListing, error)
	extract(ctx context.Context, req ExtractRequest, w *entryWriter) error
}

// zipBackend reads zip archives, including ZipCrypto and AES encrypted ones.
type zipBackend struct {
	encodingHandler EncodingHandler
	logger          zerolog.Logger
}

func newZipBackend(encodingHandler EncodingHandler, logger zerolog.Logger) *zipBackend {
	return &zipBackend{
		encodingHandler: encodingHandler,
		logger:          logger,
	}
}

func (b *zipBackend) list(_ context.Context, archivePath, _ string) (*archiveListing, error) {
	reader, err := encryptedzip.OpenReader(archivePath)
	if err != nil {
		return nil, b.handleZipError(err, archivePath)
	}
	defer reader.Close()

	listing := &archiveListing{}
	for _, file := range reader.File {
		if entry := b.entryName(file); entry != "" {
			listing.Entries = append(listing.Entries, entry)
		}
		if file.IsEncrypted() {
			listing.Encrypted = true
		}
	}
	return listing, nil
}

func (b *zipBackend) extract(ctx context.Context, req ExtractRequest, w *entryWriter) error {
	reader, err := encryptedzip.OpenReader(req.ArchivePath)
	if err != nil {
		return b.handleZipError(err, req.ArchivePath)
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
		if isDirEntry(entry) {
			if err := w.mkdir(entry); err != nil {
				return err
			}
			continue
		}

		encrypted := file.IsEncrypted()
		if encrypted {
			if req.Password == "" {
				return NewExtractError(ErrWrongPassword, "entry is encrypted and no password was given", req.ArchivePath, nil)
			}
			file.SetPassword(req.Password)
		}

		src, err := file.Open()
		if err != nil {
			return classifySourceError(err, encrypted, req.ArchivePath)
		}
		err = w.writeFile(ctx, entry, file.FileInfo().Mode(), file.FileInfo().ModTime(), src)
		src.Close()
		if err != nil {
			if se, ok := err.(*sourceError); ok {
				return classifySourceError(se.err, encrypted, req.ArchivePath)
			}
			return err
		}
	}
	return nil
}

// entryName decodes legacy code page names and normalizes the path.
func (b *zipBackend) entryName(file *encryptedzip.File) string {
	name := file.Name
	decoded, encoding, err := b.encodingHandler.SmartDecodeFileName(name)
	if err != nil {
		b.logger.Debug().Err(err).Str("entry", name).Msg("Entry name encoding not recognized")
	} else if encoding != "UTF-8" {
		b.logger.Debug().Str("entry", decoded).Str("encoding", encoding).Msg("Decoded entry name")
	}
	return normalizeEntry(decoded, file.FileInfo().IsDir() || strings.HasSuffix(name, "/"))
}

func (b *zipBackend) handleZipError(err error, path string) error {
	errorMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errorMsg, "not a valid zip file"):
		return NewExtractError(ErrArchiveUnreadable, "not a valid zip file", path, err)
	case strings.Contains(errorMsg, "no such file"):
		return NewExtractError(ErrArchiveNotFound, "archive does not exist", path, err)
	default:
		return NewExtractError(ErrArchiveUnreadable, "cannot open zip archive", path, err)
	}
}
