package id3v2

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is the text encoding marker that prefixes encoded text fields.
type Encoding byte

const (
	// EncodingLatin1 is ISO-8859-1, the only encoding ID3v1 and URL
	// fields may use.
	EncodingLatin1 Encoding = 0x00
	// EncodingUTF16 is UTF-16 with a byte order mark.
	EncodingUTF16 Encoding = 0x01
	// EncodingUTF16BE is UTF-16 big-endian without a BOM (2.4 only).
	EncodingUTF16BE Encoding = 0x02
	// EncodingUTF8 is UTF-8 (2.4 only).
	EncodingUTF8 Encoding = 0x03
)

func (e Encoding) valid() bool { return e <= EncodingUTF8 }

// wide reports whether the encoding uses 16-bit code units, which decides
// the terminator convention: one zero byte for 8-bit encodings, an
// aligned zero pair for 16-bit ones.
func (e Encoding) wide() bool { return e == EncodingUTF16 || e == EncodingUTF16BE }

func (e Encoding) terminator() []byte {
	if e.wide() {
		return []byte{0, 0}
	}
	return []byte{0}
}

func (e Encoding) String() string {
	switch e {
	case EncodingLatin1:
		return "ISO-8859-1"
	case EncodingUTF16:
		return "UTF-16"
	case EncodingUTF16BE:
		return "UTF-16BE"
	case EncodingUTF8:
		return "UTF-8"
	}
	return fmt.Sprintf("Encoding(%d)", byte(e))
}

var (
	latin1Dec  = charmap.ISO8859_1.NewDecoder()
	latin1Enc  = charmap.ISO8859_1.NewEncoder()
	utf16BOM   = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	utf16BE    = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	utf16WrBOM = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
)

// decodeText converts b to a string according to e. In strict mode
// malformed input is an error; otherwise the decoder is lenient the way
// real-world files require (odd-length UTF-16 gets a padding byte).
func (e Encoding) decodeText(b []byte, strict bool) (string, error) {
	switch e {
	case EncodingLatin1:
		out, err := latin1Dec.Bytes(b)
		if err != nil {
			return "", fmt.Errorf("id3v2: decode ISO-8859-1: %w", err)
		}
		return string(out), nil

	case EncodingUTF16, EncodingUTF16BE:
		if len(b)%2 != 0 {
			if strict {
				return "", fmt.Errorf("id3v2: odd-length UTF-16 data (%d bytes)", len(b))
			}
			b = append(append([]byte(nil), b...), 0)
		}
		if len(b) == 0 {
			return "", nil
		}
		dec := utf16BE.NewDecoder()
		if e == EncodingUTF16 {
			if hasBOM(b) {
				dec = utf16BOM.NewDecoder()
			}
			// Without a BOM the data has to be big-endian either way.
		}
		out, err := dec.Bytes(b)
		if err != nil {
			return "", fmt.Errorf("id3v2: decode %s: %w", e, err)
		}
		return string(out), nil

	case EncodingUTF8:
		if strict && !utf8.Valid(b) {
			return "", fmt.Errorf("id3v2: invalid UTF-8 data")
		}
		return string(b), nil
	}
	return "", fmt.Errorf("id3v2: unknown encoding marker %#x", byte(e))
}

func hasBOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE))
}

// encodeText converts s to bytes according to e, appending the
// encoding's terminator when terminated is set. Encoding to Latin-1
// fails for text outside its repertoire.
func (e Encoding) encodeText(s string, terminated bool) ([]byte, error) {
	var out []byte
	var err error
	switch e {
	case EncodingLatin1:
		out, err = latin1Enc.Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("id3v2: %q is not representable in ISO-8859-1: %w", s, err)
		}
	case EncodingUTF16:
		out, err = utf16WrBOM.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("id3v2: encode UTF-16: %w", err)
		}
	case EncodingUTF16BE:
		out, err = utf16BE.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("id3v2: encode UTF-16BE: %w", err)
		}
	case EncodingUTF8:
		out = []byte(s)
	default:
		return nil, fmt.Errorf("id3v2: unknown encoding marker %#x", byte(e))
	}
	if terminated {
		out = append(out, e.terminator()...)
	}
	return out, nil
}

// splitTerminated cuts data at the encoding's terminator. When no
// terminator exists the whole buffer is the value and found is false,
// letting non-strict callers tolerate writers that forgot it.
func splitTerminated(data []byte, e Encoding) (value, rest []byte, found bool) {
	if !e.wide() {
		i := bytes.IndexByte(data, 0)
		if i < 0 {
			return data, nil, false
		}
		return data[:i], data[i+1:], true
	}
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return data[:i], data[i+2:], true
		}
	}
	return data, nil, false
}
