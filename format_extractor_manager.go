package autoextract

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// NativeExtractor decodes archives in process, dispatching on the detected
// format. It implements Extractor and provides listings to the Inspector.
type NativeExtractor struct {
	detector  FormatDetector
	validator SecurityValidator
	backends  map[ArchiveFormat]formatBackend
	logger    zerolog.Logger
}

// NewNativeExtractor creates a NativeExtractor for zip, rar, 7z and the tar family.
func NewNativeExtractor(logger zerolog.Logger) *NativeExtractor {
	return newNativeExtractorWithDeps(NewFormatDetector(), NewSecurityValidator(), NewEncodingHandler(), logger)
}

func newNativeExtractorWithDeps(detector FormatDetector, validator SecurityValidator, encodingHandler EncodingHandler, logger zerolog.Logger) *NativeExtractor {
	logger = logger.With().Str("component", "native-extractor").Logger()
	return &NativeExtractor{
		detector:  detector,
		validator: validator,
		backends: map[ArchiveFormat]formatBackend{
			FormatZIP:    newZipBackend(encodingHandler, logger),
			FormatRAR:    newRarBackend(encodingHandler, logger),
			Format7Z:     newSevenZipBackend(encodingHandler, logger),
			FormatTAR:    newTarBackend(FormatTAR, logger),
			FormatTARGZ:  newTarBackend(FormatTARGZ, logger),
			FormatTARBZ2: newTarBackend(FormatTARBZ2, logger),
			FormatTARXZ:  newTarBackend(FormatTARXZ, logger),
			FormatTARZST: newTarBackend(FormatTARZST, logger),
		},
		logger: logger,
	}
}

// Extract writes the archive's entries, minus req.Exclude, into req.DestDir.
func (m *NativeExtractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
	format, backend, err := m.backendFor(req.ArchivePath)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("archive", req.ArchivePath).
		Str("format", format.String()).
		Bool("password", req.Password != "").
		Msg("Extracting")

	w := newEntryWriter(req, m.validator, m.logger)
	if err := backend.extract(ctx, req, w); err != nil {
		return nil, err
	}
	return &ExtractOutcome{Written: w.written}, nil
}

// list returns the entries of an archive using one password candidate.
func (m *NativeExtractor) list(ctx context.Context, archivePath, password string) (ArchiveFormat, *archiveListing, error) {
	format, backend, err := m.backendFor(archivePath)
	if err != nil {
		return format, nil, err
	}
	listing, err := backend.list(ctx, archivePath, password)
	return format, listing, err
}

func (m *NativeExtractor) backendFor(archivePath string) (ArchiveFormat, formatBackend, error) {
	format, err := m.detector.DetectFormat(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return FormatUnknown, nil, NewExtractError(ErrArchiveNotFound, "archive does not exist", archivePath, err)
		}
		return FormatUnknown, nil, NewExtractError(ErrArchiveUnreadable, "cannot read archive", archivePath, err)
	}

	backend, ok := m.backends[format]
	if !ok {
		return format, nil, NewExtractError(ErrArchiveUnreadable,
			fmt.Sprintf("unsupported archive format: %s", format), archivePath, nil)
	}
	return format, backend, nil
}
