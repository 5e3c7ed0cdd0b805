package id3v2

import (
	"encoding/binary"
	"fmt"
	"math"
)

// A Spec is one stateless field codec within a frame. A frame's payload
// is decoded by running its ordered spec list against the byte buffer,
// each spec consuming its field from the front and returning the rest.
type Spec interface {
	Name() string
	Read(f *Frame, data []byte) (any, []byte, error)
	Write(f *Frame, v any) ([]byte, error)
}

type specName string

func (n specName) Name() string { return string(n) }

func junk(id string, err error) error { return &JunkFrameError{ID: id, cause: err} }

// byteSpec consumes one byte.
type byteSpec struct{ specName }

func (s byteSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated data", s.Name())
	}
	return data[0], data[1:], nil
}

func (s byteSpec) Write(f *Frame, v any) ([]byte, error) {
	b, ok := v.(byte)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected byte, got %T", s.Name(), v)
	}
	return []byte{b}, nil
}

// integerSpec consumes a fixed-size big-endian unsigned integer.
type integerSpec struct {
	specName
	size int
}

func (s integerSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < s.size {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated data", s.Name())
	}
	var v uint64
	for _, c := range data[:s.size] {
		v = v<<8 | uint64(c)
	}
	return v, data[s.size:], nil
}

func (s integerSpec) Write(f *Frame, v any) ([]byte, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected uint64, got %T", s.Name(), v)
	}
	out := make([]byte, s.size)
	for i := s.size - 1; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out, nil
}

// encodingSpec consumes the encoding marker byte and records it on the
// frame so the text specs that follow know how to decode their fields.
type encodingSpec struct{ specName }

func (s encodingSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("id3v2: missing encoding marker")
	}
	enc := Encoding(data[0])
	if !enc.valid() {
		return nil, nil, fmt.Errorf("id3v2: invalid encoding marker %#x", data[0])
	}
	f.Encoding = enc
	return enc, data[1:], nil
}

func (s encodingSpec) Write(f *Frame, v any) ([]byte, error) {
	enc, ok := v.(Encoding)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected Encoding, got %T", s.Name(), v)
	}
	f.Encoding = enc
	return []byte{byte(enc)}, nil
}

// languageSpec consumes a 3-byte ISO-639-2 code.
type languageSpec struct{ specName }

func (s languageSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < 3 {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated data", s.Name())
	}
	return string(data[:3]), data[3:], nil
}

func (s languageSpec) Write(f *Frame, v any) ([]byte, error) {
	lang, ok := v.(string)
	if !ok || len(lang) != 3 {
		return nil, fmt.Errorf("id3v2: field %q: need a 3-byte language code, got %v", s.Name(), v)
	}
	return []byte(lang), nil
}

// latin1TextSpec consumes a null-terminated ISO-8859-1 string. The
// terminator may be missing at the end of the buffer.
type latin1TextSpec struct{ specName }

func (s latin1TextSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	raw, rest, found := splitTerminated(data, EncodingLatin1)
	if !found && f.strict {
		return nil, nil, errNoTerminator
	}
	text, err := EncodingLatin1.decodeText(raw, f.strict)
	if err != nil {
		return nil, nil, err
	}
	return text, rest, nil
}

func (s latin1TextSpec) Write(f *Frame, v any) ([]byte, error) {
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected string, got %T", s.Name(), v)
	}
	return EncodingLatin1.encodeText(text, true)
}

// encodedTextSpec consumes one terminated string in the frame's
// encoding. In non-strict mode a missing terminator is tolerated and a
// failed decode is retried with a terminator appended, which covers
// encoders that wrote a single null after UTF-16 text.
type encodedTextSpec struct{ specName }

func (s encodedTextSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	raw, rest, found := splitTerminated(data, f.Encoding)
	if !found && f.strict {
		return nil, nil, errNoTerminator
	}
	text, err := f.Encoding.decodeText(raw, f.strict)
	if err != nil && !f.strict {
		text, err = f.Encoding.decodeText(append(append([]byte(nil), raw...), 0), false)
	}
	if err != nil {
		return nil, nil, err
	}
	return text, rest, nil
}

func (s encodedTextSpec) Write(f *Frame, v any) ([]byte, error) {
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected string, got %T", s.Name(), v)
	}
	return f.Encoding.encodeText(text, true)
}

// multiTextSpec consumes null-separated strings until the buffer is
// exhausted. The v2.4 convention; on a v2.3 write the values are joined
// with sep into a single string instead, because 2.3 has no multi-value
// convention.
type multiTextSpec struct {
	specName
	sep string
}

func (s multiTextSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	var out []string
	for len(data) > 0 {
		one := encodedTextSpec{s.specName}
		v, rest, err := one.Read(f, data)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, v.(string))
		data = rest
	}
	if out == nil {
		out = []string{""}
	}
	return out, nil, nil
}

func (s multiTextSpec) Write(f *Frame, v any) ([]byte, error) {
	values, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected []string, got %T", s.Name(), v)
	}
	if f.version == 3 {
		sep := s.sep
		if sep == "" {
			sep = "/"
		}
		return encodedTextSpec{s.specName}.Write(f, joinStrings(values, sep))
	}
	var out []byte
	for _, text := range values {
		b, err := f.Encoding.encodeText(text, true)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	// The last terminator is conventional padding; keep it, readers drop it.
	return out, nil
}

func joinStrings(values []string, sep string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += sep
		}
		out += v
	}
	return out
}

// pairListSpec consumes (role, person) string pairs until exhaustion,
// the TIPL/TMCL shape.
type pairListSpec struct{ specName }

func (s pairListSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	var out [][2]string
	one := encodedTextSpec{s.specName}
	for len(data) > 0 {
		a, rest, err := one.Read(f, data)
		if err != nil {
			return nil, nil, err
		}
		var b any = ""
		if len(rest) > 0 {
			b, rest, err = one.Read(f, rest)
			if err != nil {
				return nil, nil, err
			}
		}
		out = append(out, [2]string{a.(string), b.(string)})
		data = rest
	}
	return out, nil, nil
}

func (s pairListSpec) Write(f *Frame, v any) ([]byte, error) {
	pairs, ok := v.([][2]string)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected [][2]string, got %T", s.Name(), v)
	}
	var out []byte
	one := encodedTextSpec{s.specName}
	for _, p := range pairs {
		for _, text := range p {
			b, err := one.Write(f, text)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// multiTimeSpec consumes null-separated partial ISO-8601 timestamps.
type multiTimeSpec struct{ specName }

func (s multiTimeSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	raw, _, err := multiTextSpec{specName: s.specName}.Read(f, data)
	if err != nil {
		return nil, nil, err
	}
	var out []TimeStamp
	for _, text := range raw.([]string) {
		ts, err := ParseTimeStamp(text)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, ts)
	}
	return out, nil, nil
}

func (s multiTimeSpec) Write(f *Frame, v any) (out []byte, err error) {
	stamps, ok := v.([]TimeStamp)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected []TimeStamp, got %T", s.Name(), v)
	}
	values := make([]string, len(stamps))
	for i, ts := range stamps {
		values[i] = ts.String()
	}
	return multiTextSpec{specName: s.specName}.Write(f, values)
}

// binarySpec consumes the rest of the buffer verbatim.
type binarySpec struct{ specName }

func (s binarySpec) Read(f *Frame, data []byte) (any, []byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil, nil
}

func (s binarySpec) Write(f *Frame, v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected []byte, got %T", s.Name(), v)
	}
	return b, nil
}

// counterSpec consumes the remaining bytes as a big-endian plain
// (8 bits per byte) counter that is at least four bytes wide on write
// but may grow, the PCNT/POPM play-count shape. An absent counter reads
// as zero.
type counterSpec struct{ specName }

func (s counterSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	return DecodeBitPadded(data, 8, true), nil, nil
}

func (s counterSpec) Write(f *Frame, v any) ([]byte, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected uint64, got %T", s.Name(), v)
	}
	return EncodeBitPadded(n, 8, true, -1)
}

// volumeAdjustmentSpec consumes the RVA2 gain: a signed 16-bit
// fixed-point value in units of 1/512 dB.
type volumeAdjustmentSpec struct{ specName }

func (s volumeAdjustmentSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated data", s.Name())
	}
	raw := int16(binary.BigEndian.Uint16(data))
	return float64(raw) / 512, data[2:], nil
}

func (s volumeAdjustmentSpec) Write(f *Frame, v any) ([]byte, error) {
	gain, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected float64, got %T", s.Name(), v)
	}
	raw := math.Round(gain * 512)
	if raw < math.MinInt16 || raw > math.MaxInt16 {
		return nil, fmt.Errorf("id3v2: volume adjustment %+.2f dB out of range", gain)
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(int16(raw)))
	return out, nil
}

// volumePeakSpec consumes the RVA2 peak: a bit count followed by that
// many significant bits of an unsigned fixed-point value where 1.0 is
// 1 << (bits-1). Writes always use 16 bits.
type volumePeakSpec struct{ specName }

func (s volumePeakSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated data", s.Name())
	}
	bits := int(data[0])
	if bits == 0 {
		return float64(0), data[1:], nil
	}
	nbytes := (bits + 7) / 8
	if len(data) < 1+nbytes {
		return nil, nil, fmt.Errorf("id3v2: field %q: truncated peak data", s.Name())
	}
	use := nbytes
	if use > 8 {
		use = 8
	}
	var raw uint64
	for _, c := range data[1 : 1+use] {
		raw = raw<<8 | uint64(c)
	}
	// Align: the value occupies the top bits of the bytes read.
	shift := uint(use*8 - bits)
	if use < nbytes {
		shift = 0
	}
	peak := float64(raw>>shift) / float64(uint64(1)<<(bits-1))
	return peak, data[1+nbytes:], nil
}

func (s volumePeakSpec) Write(f *Frame, v any) ([]byte, error) {
	peak, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected float64, got %T", s.Name(), v)
	}
	if peak < 0 {
		return nil, fmt.Errorf("id3v2: negative peak %f", peak)
	}
	raw := math.Round(peak * 32768)
	if raw > math.MaxUint16 {
		raw = math.MaxUint16
	}
	out := make([]byte, 3)
	out[0] = 16
	binary.BigEndian.PutUint16(out[1:], uint16(raw))
	return out, nil
}

// SyncText is one entry of a synchronized lyrics/text frame.
type SyncText struct {
	Text string
	Time uint32
}

// syncTextSpec consumes (terminated text, 4-byte timestamp) records
// until the buffer is exhausted, the SYLT shape.
type syncTextSpec struct{ specName }

func (s syncTextSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	var out []SyncText
	one := encodedTextSpec{s.specName}
	for len(data) > 0 {
		v, rest, err := one.Read(f, data)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("id3v2: field %q: truncated timestamp", s.Name())
		}
		out = append(out, SyncText{
			Text: v.(string),
			Time: binary.BigEndian.Uint32(rest),
		})
		data = rest[4:]
	}
	return out, nil, nil
}

func (s syncTextSpec) Write(f *Frame, v any) ([]byte, error) {
	entries, ok := v.([]SyncText)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected []SyncText, got %T", s.Name(), v)
	}
	var out []byte
	for _, e := range entries {
		b, err := f.Encoding.encodeText(e.Text, true)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		var t [4]byte
		binary.BigEndian.PutUint32(t[:], e.Time)
		out = append(out, t[:]...)
	}
	return out, nil
}

// aspiIndexSpec consumes the ASPI index table, whose entry width is the
// frame's own "bits" field (8 or 16) and whose length is its "points"
// field.
type aspiIndexSpec struct{ specName }

func (s aspiIndexSpec) Read(f *Frame, data []byte) (any, []byte, error) {
	bits, _ := f.Values["bits"].(byte)
	points, _ := f.Values["points"].(uint64)
	width := 0
	switch bits {
	case 8:
		width = 1
	case 16:
		width = 2
	default:
		return nil, nil, fmt.Errorf("id3v2: ASPI bit count %d is not 8 or 16", bits)
	}
	if uint64(len(data)) < points*uint64(width) {
		return nil, nil, fmt.Errorf("id3v2: truncated ASPI index")
	}
	out := make([]uint16, points)
	for i := range out {
		if width == 1 {
			out[i] = uint16(data[i])
		} else {
			out[i] = binary.BigEndian.Uint16(data[i*2:])
		}
	}
	return out, data[points*uint64(width):], nil
}

func (s aspiIndexSpec) Write(f *Frame, v any) ([]byte, error) {
	index, ok := v.([]uint16)
	if !ok {
		return nil, fmt.Errorf("id3v2: field %q: expected []uint16, got %T", s.Name(), v)
	}
	bits, _ := f.Values["bits"].(byte)
	var out []byte
	for _, n := range index {
		switch bits {
		case 8:
			if n > 0xFF {
				return nil, fmt.Errorf("id3v2: ASPI index value %d exceeds 8 bits", n)
			}
			out = append(out, byte(n))
		case 16:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], n)
			out = append(out, b[:]...)
		default:
			return nil, fmt.Errorf("id3v2: ASPI bit count %d is not 8 or 16", bits)
		}
	}
	return out, nil
}
