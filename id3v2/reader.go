package id3v2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var id3Magic = [3]byte{'I', 'D', '3'}

// Decode parses an ID3v2 tag from r. Per-frame decode failures are
// skipped; only a missing or malformed outer header, an unsupported
// version or an I/O failure abort the whole parse.
func Decode(r io.Reader) (*Tag, error) {
	return decode(r, false)
}

// DecodeStrict is Decode with strict field decoding: missing string
// terminators and malformed text become junk frames instead of being
// tolerated. Use it when round-trip fidelity matters more than leniency.
func DecodeStrict(r io.Reader) (*Tag, error) {
	return decode(r, true)
}

func decode(r io.Reader, strict bool) (*Tag, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			var magic [3]byte
			copy(magic[:], hdr[:])
			return nil, &HeaderError{Magic: magic}
		}
		return nil, err
	}
	h, err := parseHeader(hdr)
	if err != nil {
		return nil, err
	}

	body := make([]byte, h.Size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	// Whole-tag unsynchronization applies up to 2.3; 2.4 moved the flag
	// onto individual frames. Files that set the flag but were never
	// actually stuffed are read as-is.
	if h.Version < 4 && h.Unsynchronised() {
		if decoded, err := unsyncDecode(body); err == nil {
			body = decoded
		}
	}
	body = skipExtendedHeader(h, body)

	t := NewTag()
	t.Header = h

	var p frameParser
	switch h.Version {
	case 2:
		p = &v22Parser{strict: strict}
	case 3:
		p = &v23Parser{strict: strict}
	case 4:
		p = &v24Parser{strict: strict, wholeUnsync: h.Unsynchronised()}
	}
	if err := p.parse(t, body); err != nil {
		return nil, err
	}
	if h.Version < 4 {
		t.upgrade()
	}
	return t, nil
}

func parseHeader(hdr [headerSize]byte) (Header, error) {
	var magic [3]byte
	copy(magic[:], hdr[:3])
	if magic != id3Magic {
		return Header{}, &HeaderError{Magic: magic}
	}
	h := Header{
		Version:  hdr[3],
		Revision: hdr[4],
		Flags:    hdr[5],
		Size:     decodeSynchsafe(hdr[6:10]),
	}
	if h.Version < 2 || h.Version > 4 {
		return Header{}, &UnsupportedVersionError{Major: h.Version, Minor: h.Revision}
	}
	return h, nil
}

// skipExtendedHeader drops the optional extended header from the front
// of body. A size that does not fit the buffer means the flag was
// bogus, in which case the body is returned untouched.
func skipExtendedHeader(h Header, body []byte) []byte {
	if !h.ExtendedHeader() || len(body) < 4 {
		return body
	}
	switch h.Version {
	case 3:
		// Plain size, excluding the size field itself.
		size := 4 + int(binary.BigEndian.Uint32(body[:4]))
		if size <= len(body) {
			return body[size:]
		}
	case 4:
		// Synchsafe size, including the size field.
		size := decodeSynchsafe(body[:4])
		if size >= 6 && size <= len(body) {
			return body[size:]
		}
	}
	return body
}

// frameParser is one version lane of the frame-stream state machine,
// selected once per file from the outer header.
type frameParser interface {
	parse(t *Tag, body []byte) error
}

func validFrameID(id string) bool {
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func isJunk(err error) bool {
	var jfe *JunkFrameError
	return errors.As(err, &jfe)
}

func addFrame(t *Tag, id string, flags FrameFlags, payload []byte, strict bool) error {
	f, err := decodeFrame(id, flags, payload, strict)
	if err != nil {
		if isJunk(err) {
			return nil // junk frames are skipped, not fatal
		}
		return err
	}
	t.Set(f)
	return nil
}

// v22Parser reads 6-byte frame headers: a 3-character identifier and a
// 3-byte plain big-endian size. No flags.
type v22Parser struct {
	strict bool
}

func (p *v22Parser) parse(t *Tag, body []byte) error {
	o := 0
	for o+6 <= len(body) {
		hdr := body[o : o+6]
		if bytes.Equal(hdr[:3], []byte{0, 0, 0}) {
			break // padding
		}
		id := string(hdr[:3])
		if !validFrameID(id) {
			break
		}
		size := int(hdr[3])<<16 | int(hdr[4])<<8 | int(hdr[5])
		o += 6
		if size == 0 {
			continue
		}
		if o+size > len(body) {
			break
		}
		payload := body[o : o+size]
		o += size

		mapped, ok := v22Frames[id]
		if !ok {
			continue // no modern equivalent, nothing to preserve it as
		}
		if id == "PIC" {
			payload = picToAPIC(payload)
		}
		if err := addFrame(t, mapped, 0, payload, p.strict); err != nil {
			return err
		}
	}
	return nil
}

// picToAPIC rewrites a v2.2 PIC payload, whose image format is a fixed
// 3-character code, into APIC's null-terminated MIME form.
func picToAPIC(payload []byte) []byte {
	if len(payload) < 4 {
		return payload
	}
	format := payload[1:4]
	var mime string
	switch string(format) {
	case "PNG":
		mime = "image/png"
	case "JPG":
		mime = "image/jpeg"
	default:
		mime = "image/" + string(bytes.ToLower(format))
	}
	out := make([]byte, 0, len(payload)+len(mime))
	out = append(out, payload[0])
	out = append(out, mime...)
	out = append(out, 0)
	out = append(out, payload[4:]...)
	return out
}

// v23Parser reads 10-byte frame headers with plain big-endian sizes.
type v23Parser struct {
	strict bool
}

func (p *v23Parser) parse(t *Tag, body []byte) error {
	o := 0
	for o+headerSize <= len(body) {
		hdr := body[o : o+headerSize]
		if bytes.Equal(hdr[:4], []byte{0, 0, 0, 0}) {
			break
		}
		id := string(hdr[:4])
		if !validFrameID(id) {
			break
		}
		size := int(binary.BigEndian.Uint32(hdr[4:8]))
		flags := translateV23Flags(binary.BigEndian.Uint16(hdr[8:10]))
		o += headerSize
		if size == 0 {
			continue
		}
		if o+size > len(body) {
			break
		}
		payload := body[o : o+size]
		o += size

		if err := p.addV23Frame(t, id, flags, payload); err != nil && !isJunk(err) {
			return err
		}
	}
	return nil
}

func (p *v23Parser) addV23Frame(t *Tag, id string, flags FrameFlags, payload []byte) error {
	if flags&(FlagCompressed|FlagEncrypted) != 0 {
		return preserveOpaque(t, id, flags, payload, p.strict)
	}
	return addFrame(t, id, flags, payload, p.strict)
}

// translateV23Flags maps the v2.3 frame flag word onto the v2.4 layout
// used internally.
func translateV23Flags(raw uint16) FrameFlags {
	var f FrameFlags
	if raw&0x8000 != 0 {
		f |= FlagTagAlterDiscard
	}
	if raw&0x4000 != 0 {
		f |= FlagFileAlterDiscard
	}
	if raw&0x2000 != 0 {
		f |= FlagReadOnly
	}
	if raw&0x0080 != 0 {
		f |= FlagCompressed
	}
	if raw&0x0040 != 0 {
		f |= FlagEncrypted
	}
	if raw&0x0020 != 0 {
		f |= FlagGrouped
	}
	return f
}

// preserveOpaque keeps a frame we detect but do not decode (compressed
// or encrypted) as a verbatim unknown frame. Strict decodes reject it
// as junk instead.
func preserveOpaque(t *Tag, id string, flags FrameFlags, payload []byte, strict bool) error {
	if strict {
		if flags&FlagEncrypted != 0 {
			return junk(id, ErrEncryptedFrame)
		}
		return junk(id, ErrCompressedFrame)
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)
	t.Set(&Frame{ID: id, Flags: flags, Raw: raw})
	return nil
}

// v24Parser reads 10-byte frame headers with synchsafe sizes, unless
// the auto-detection heuristic decides the writer used plain integers.
type v24Parser struct {
	strict      bool
	wholeUnsync bool
}

func (p *v24Parser) parse(t *Tag, body []byte) error {
	plain := usesPlainSizes(body)
	o := 0
	for o+headerSize <= len(body) {
		hdr := body[o : o+headerSize]
		if bytes.Equal(hdr[:4], []byte{0, 0, 0, 0}) {
			break
		}
		id := string(hdr[:4])
		if !validFrameID(id) {
			break
		}
		var size int
		if plain {
			size = int(binary.BigEndian.Uint32(hdr[4:8]))
		} else {
			size = decodeSynchsafe(hdr[4:8])
		}
		flags := FrameFlags(binary.BigEndian.Uint16(hdr[8:10]))
		o += headerSize
		if size == 0 {
			continue
		}
		if o+size > len(body) {
			break
		}
		payload := body[o : o+size]
		o += size

		if err := p.addV24Frame(t, id, flags, payload); err != nil && !isJunk(err) {
			return err
		}
	}
	return nil
}

func (p *v24Parser) addV24Frame(t *Tag, id string, flags FrameFlags, payload []byte) error {
	if flags&(FlagCompressed|FlagEncrypted) != 0 {
		return preserveOpaque(t, id, flags, payload, p.strict)
	}
	if flags&FlagUnsynchronised != 0 || p.wholeUnsync {
		decoded, err := unsyncDecode(payload)
		if err != nil {
			return nil // stuffing is corrupt, treat as junk
		}
		payload = decoded
	}
	if flags&FlagDataLength != 0 {
		if len(payload) < 4 {
			return nil
		}
		payload = payload[4:]
	}
	return addFrame(t, id, flags, payload, p.strict)
}

// usesPlainSizes decides whether a tag declared as 2.4 was written with
// plain instead of synchsafe frame sizes, which some encoders did. The
// frame stream is walked under both interpretations; whichever yields
// more recognized frame identifiers wins, and on a tie the plain
// interpretation is chosen only when the synchsafe walk overran the
// buffer while the plain walk landed cleanly. The tie-break order is
// load-bearing: real-world files depend on it, so it must not be
// "improved".
func usesPlainSizes(body []byte) bool {
	walk := func(plain bool) (known int, off int) {
		o := 0
		for o < len(body)-headerSize {
			hdr := body[o : o+headerSize]
			if bytes.Equal(hdr, make([]byte, headerSize)) {
				// Landed in padding; measure how cleanly.
				return known, -((len(body) - o) % headerSize)
			}
			var size int
			if plain {
				size = int(binary.BigEndian.Uint32(hdr[4:8]))
			} else {
				size = decodeSynchsafe(hdr[4:8])
			}
			if _, ok := registry[string(hdr[:4])]; ok {
				known++
			}
			o += headerSize + size
		}
		return known, o - len(body)
	}

	knownSynch, offSynch := walk(false)
	knownPlain, offPlain := walk(true)
	if knownPlain > knownSynch {
		return true
	}
	if knownPlain == knownSynch && offSynch >= 1 && offPlain <= 1 {
		return true
	}
	return false
}
