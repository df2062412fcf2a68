package autoextract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	utfencoding "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// EncodingHandler recovers entry names stored in legacy code pages.
type EncodingHandler interface {
	// DecodeFileName decodes raw name bytes from the named encoding.
	DecodeFileName(fileName, encoding string) (string, error)

	// DetectEncoding guesses the encoding of raw name bytes.
	DetectEncoding(fileName string) string

	// SmartDecodeFileName returns a valid UTF-8 name and the encoding it came from.
	SmartDecodeFileName(fileName string) (string, string, error)
}

type defaultEncodingHandler struct {
	// tried in order before falling back to chardet
	priorityEncodings []string
}

// NewEncodingHandler creates an EncodingHandler preferring CJK code pages,
// which is where non-UTF-8 zip names almost always come from.
func NewEncodingHandler() EncodingHandler {
	return &defaultEncodingHandler{
		priorityEncodings: []string{"GBK", "BIG5", "SHIFT_JIS", "EUC-KR"},
	}
}

// DecodeFileName decodes raw name bytes from the named encoding.
func (h *defaultEncodingHandler) DecodeFileName(fileName, encoding string) (string, error) {
	if encoding == "" || strings.EqualFold(encoding, "UTF-8") {
		return fileName, nil
	}

	decoder := h.getDecoder(encoding)
	if decoder == nil {
		return fileName, fmt.Errorf("unsupported encoding %s", encoding)
	}

	decodedBytes, _, err := transform.Bytes(decoder, []byte(fileName))
	if err != nil {
		return fileName, err
	}
	return string(decodedBytes), nil
}

// DetectEncoding guesses the encoding of raw name bytes.
func (h *defaultEncodingHandler) DetectEncoding(fileName string) string {
	if utf8.ValidString(fileName) {
		return "UTF-8"
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest([]byte(fileName))
	if err == nil && result.Confidence > 70 {
		if enc := mapCharsetToEncoding(result.Charset); enc != "" {
			return enc
		}
	}
	return ""
}

// SmartDecodeFileName returns a valid UTF-8 name and the encoding it came from.
// Names that are already valid UTF-8 pass through untouched.
func (h *defaultEncodingHandler) SmartDecodeFileName(fileName string) (string, string, error) {
	if utf8.ValidString(fileName) {
		return fileName, "UTF-8", nil
	}

	if detected := h.DetectEncoding(fileName); detected != "" && detected != "UTF-8" {
		if decoded, err := h.DecodeFileName(fileName, detected); err == nil && isReasonableFileName(decoded) {
			return decoded, detected, nil
		}
	}

	for _, encoding := range h.priorityEncodings {
		decoded, err := h.DecodeFileName(fileName, encoding)
		if err == nil && isReasonableFileName(decoded) {
			return decoded, encoding, nil
		}
	}

	return strings.ToValidUTF8(fileName, "_"), "", fmt.Errorf("could not determine encoding of %q", fileName)
}

func (h *defaultEncodingHandler) getDecoder(encoding string) transform.Transformer {
	switch strings.ToUpper(encoding) {
	case "GBK", "GB2312", "GB18030":
		return simplifiedchinese.GBK.NewDecoder()
	case "BIG5":
		return traditionalchinese.Big5.NewDecoder()
	case "SHIFT_JIS", "SJIS":
		return japanese.ShiftJIS.NewDecoder()
	case "EUC-KR":
		return korean.EUCKR.NewDecoder()
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1.NewDecoder()
	case "CP437":
		return charmap.CodePage437.NewDecoder()
	case "CP1252", "WINDOWS-1252":
		return charmap.Windows1252.NewDecoder()
	case "UTF-16":
		return utfencoding.UTF16(utfencoding.LittleEndian, utfencoding.UseBOM).NewDecoder()
	default:
		return nil
	}
}

func mapCharsetToEncoding(charset string) string {
	switch strings.ToUpper(charset) {
	case "GB2312", "GBK", "GB18030":
		return "GBK"
	case "BIG5":
		return "BIG5"
	case "SHIFT_JIS", "SJIS":
		return "SHIFT_JIS"
	case "EUC-KR":
		return "EUC-KR"
	case "ISO-8859-1", "WINDOWS-1252":
		return "WINDOWS-1252"
	case "UTF-8":
		return "UTF-8"
	case "UTF-16LE", "UTF-16BE":
		return "UTF-16"
	default:
		return ""
	}
}

// isReasonableFileName rejects decodings that produced replacement or
// control characters.
func isReasonableFileName(fileName string) bool {
	if !utf8.ValidString(fileName) {
		return false
	}
	for _, r := range fileName {
		if r == utf8.RuneError || (r < 32 && r != '\t') {
			return false
		}
	}
	return true
}
