package autoextract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FormatDetector identifies archive formats from content and name.
type FormatDetector interface {
	// DetectFormat checks magic bytes first and falls back to the extension.
	DetectFormat(filePath string) (ArchiveFormat, error)

	// DetectFromBytes checks magic bytes only.
	DetectFromBytes(data []byte) ArchiveFormat

	// DetectByName uses the file name only.
	DetectByName(filePath string) ArchiveFormat
}

type defaultFormatDetector struct {
	maxMagicBytes int
}

// NewFormatDetector creates a FormatDetector.
func NewFormatDetector() FormatDetector {
	return &defaultFormatDetector{
		maxMagicBytes: 512,
	}
}

// DetectFormat checks magic bytes first and falls back to the extension.
// Compressed tar streams are told apart from bare gzip/bzip2 by name.
func (d *defaultFormatDetector) DetectFormat(filePath string) (ArchiveFormat, error) {
	magic, err := d.detectByMagicBytes(filePath)
	if err != nil {
		return FormatUnknown, err
	}
	byName := d.DetectByName(filePath)

	switch {
	case magic == FormatUnknown:
		return byName, nil
	case magic.IsTar() && byName.IsTar():
		// the magic of a compressed stream says nothing about what is inside it
		return byName, nil
	default:
		return magic, nil
	}
}

// DetectFromBytes checks magic bytes only.
func (d *defaultFormatDetector) DetectFromBytes(data []byte) ArchiveFormat {
	if len(data) < 4 {
		return FormatUnknown
	}

	switch {
	case d.isZipFormat(data):
		return FormatZIP
	case d.isRarFormat(data):
		return FormatRAR
	case d.is7zFormat(data):
		return Format7Z
	case d.isTarFormat(data):
		return FormatTAR
	case d.isGzipFormat(data):
		return FormatTARGZ
	case d.isBzip2Format(data):
		return FormatTARBZ2
	case d.isXzFormat(data):
		return FormatTARXZ
	case d.isZstdFormat(data):
		return FormatTARZST
	}
	return FormatUnknown
}

// DetectByName uses the file name only. First volumes of split archives
// (name.7z.001, name.part1.rar) map to their container format.
func (d *defaultFormatDetector) DetectByName(filePath string) ArchiveFormat {
	filename := strings.ToLower(filepath.Base(filePath))

	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		return FormatTARGZ
	case strings.HasSuffix(filename, ".tar.bz2"), strings.HasSuffix(filename, ".tbz"),
		strings.HasSuffix(filename, ".tbz2"):
		return FormatTARBZ2
	case strings.HasSuffix(filename, ".tar.xz"), strings.HasSuffix(filename, ".txz"):
		return FormatTARXZ
	case strings.HasSuffix(filename, ".tar.zst"), strings.HasSuffix(filename, ".tzst"):
		return FormatTARZST
	case strings.HasSuffix(filename, ".tar"):
		return FormatTAR
	case strings.HasSuffix(filename, ".zip"):
		return FormatZIP
	case strings.HasSuffix(filename, ".rar"):
		return FormatRAR
	case strings.HasSuffix(filename, ".7z"), sevenZipVolumeRe.MatchString(filename):
		return Format7Z
	}
	return FormatUnknown
}

func (d *defaultFormatDetector) detectByMagicBytes(filePath string) (ArchiveFormat, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return FormatUnknown, err
	}
	defer file.Close()

	buffer := make([]byte, d.maxMagicBytes)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FormatUnknown, err
	}

	return d.DetectFromBytes(buffer[:n]), nil
}

// PK\x03\x04, PK\x05\x06 (empty archive) or PK\x07\x08 (spanned)
func (d *defaultFormatDetector) isZipFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) ||
		bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x05, 0x06}) ||
		bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x07, 0x08})
}

// Rar!\x1A\x07\x00 (v4) or Rar!\x1A\x07\x01\x00 (v5)
func (d *defaultFormatDetector) isRarFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}) ||
		bytes.HasPrefix(data, []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00})
}

func (d *defaultFormatDetector) is7zFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C})
}

func (d *defaultFormatDetector) isTarFormat(data []byte) bool {
	if len(data) < 512 {
		return false
	}
	// "ustar\x00" (POSIX) or "ustar " (GNU) at offset 257
	if !bytes.Equal(data[257:262], []byte("ustar")) {
		return false
	}
	return d.validateTarChecksum(data)
}

func (d *defaultFormatDetector) isGzipFormat(data []byte) bool {
	return data[0] == 0x1F && data[1] == 0x8B && data[2] == 0x08
}

func (d *defaultFormatDetector) isBzip2Format(data []byte) bool {
	return bytes.HasPrefix(data, []byte("BZh"))
}

func (d *defaultFormatDetector) isXzFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00})
}

func (d *defaultFormatDetector) isZstdFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x28, 0xB5, 0x2F, 0xFD})
}

// validateTarChecksum checks the header checksum; the checksum field itself
// counts as spaces.
func (d *defaultFormatDetector) validateTarChecksum(data []byte) bool {
	var sum int64
	for i := 0; i < 512; i++ {
		if i >= 148 && i < 156 {
			sum += int64(' ')
		} else {
			sum += int64(data[i])
		}
	}

	checksumStr := strings.TrimRight(strings.TrimSpace(string(data[148:156])), "\x00 ")
	if checksumStr == "" {
		return false
	}

	stored, err := parseOctal(checksumStr)
	if err != nil {
		return false
	}
	return sum == stored
}

func parseOctal(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid octal %q: %w", s, err)
	}
	return v, nil
}

var (
	rarPartRe        = regexp.MustCompile(`(?i)\.part(\d+)\.rar$`)
	rarOldVolumeRe   = regexp.MustCompile(`(?i)\.r\d{2,3}$`)
	zipSplitRe       = regexp.MustCompile(`(?i)\.z\d{2,3}$`)
	sevenZipVolumeRe = regexp.MustCompile(`(?i)\.7z\.(\d{3})$`)
)

// IsArchiveName reports whether a file name looks like an archive worth
// processing. Secondary volumes of split archives are excluded; only the
// first volume is opened.
func IsArchiveName(name string) bool {
	if IsSecondaryVolume(name) {
		return false
	}
	if rarOldVolumeRe.MatchString(name) || zipSplitRe.MatchString(name) {
		return false
	}
	return NewFormatDetector().DetectByName(name) != FormatUnknown
}

// IsSecondaryVolume reports whether name is volume 2+ of a split archive.
func IsSecondaryVolume(name string) bool {
	base := filepath.Base(name)
	if m := rarPartRe.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n != 1
	}
	if m := sevenZipVolumeRe.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n != 1
	}
	return false
}
