// Package asf reads and writes ASF (WMA/WMV) metadata.
//
// An ASF file opens with a header object whose children are themselves
// GUID-tagged objects. Metadata lives in up to four of them: the
// content description object (five fixed fields), the extended content
// description object (named attributes), and the metadata and metadata
// library objects nested inside the header extension. Everything else
// is preserved verbatim and written back untouched.
package asf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"tagforge-backend/fileio"
)

// ErrNotASF reports that the file does not start with an ASF header
// object.
var ErrNotASF = errors.New("asf: not an ASF file")

const (
	headerPreludeSize = 30 // GUID + size + object count + 2 reserved bytes
	objectHeaderSize  = 24 // GUID + size

	// maxHeaderSize caps how much the declared header size may allocate.
	// Real-world headers are tens of kilobytes; the size field is
	// attacker-controlled and must not drive make() unchecked.
	maxHeaderSize = 1 << 26
)

// contentDescFields are the five fixed fields of the content
// description object, in wire order. Attributes with these names and no
// stream or language routing are stored there.
var contentDescFields = [5]string{"Title", "Author", "Copyright", "Description", "Rating"}

// child is one object inside the header (or header extension). A nil
// raw marks a metadata object the container regenerates from its
// attributes on save; unrecognized objects keep their payload verbatim.
type child struct {
	id  uuid.UUID
	raw []byte
}

// File is a parsed ASF header together with the bookkeeping needed to
// rewrite it in place.
type File struct {
	attrs []*Attribute

	children    []child
	extChildren []child
	hasExt      bool
	extReserved [18]byte // reserved GUID + word of the header extension

	headerSize int64 // on-disk size of the whole header object
}

// Attributes returns all attributes in parse order.
func (f *File) Attributes() []*Attribute {
	out := make([]*Attribute, len(f.attrs))
	copy(out, f.attrs)
	return out
}

// Get returns every attribute named name, in order. ASF allows
// duplicate names.
func (f *File) Get(name string) []*Attribute {
	var out []*Attribute
	for _, a := range f.attrs {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// GetString returns the first string value of name, or "".
func (f *File) GetString(name string) string {
	for _, a := range f.attrs {
		if a.Name == name {
			return a.UnicodeValue()
		}
	}
	return ""
}

// Set replaces every attribute named a.Name with a.
func (f *File) Set(a *Attribute) {
	replaced := false
	out := f.attrs[:0]
	for _, old := range f.attrs {
		if old.Name != a.Name {
			out = append(out, old)
			continue
		}
		if !replaced {
			out = append(out, a)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, a)
	}
	f.attrs = out
}

// SetString replaces name with a single unicode value.
func (f *File) SetString(name, value string) {
	f.Set(NewUnicodeAttribute(name, value))
}

// Delete removes every attribute named name and reports whether any
// were there.
func (f *File) Delete(name string) bool {
	out := f.attrs[:0]
	found := false
	for _, a := range f.attrs {
		if a.Name == name {
			found = true
			continue
		}
		out = append(out, a)
	}
	f.attrs = out
	return found
}

// Load opens and parses the ASF header of the file at path.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

// Decode parses an ASF header from r.
func Decode(r io.Reader) (*File, error) {
	prelude := make([]byte, headerPreludeSize)
	if _, err := io.ReadFull(r, prelude); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNotASF
		}
		return nil, err
	}
	if decodeGUID(prelude[:16]) != guidHeaderObject {
		return nil, ErrNotASF
	}
	size := int64(binary.LittleEndian.Uint64(prelude[16:24]))
	if size < headerPreludeSize || size > maxHeaderSize {
		return nil, fmt.Errorf("asf: header object size %d is impossible", size)
	}
	body := make([]byte, size-headerPreludeSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	f := &File{headerSize: size}
	if err := f.parseChildren(body); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseChildren(body []byte) error {
	for len(body) > 0 {
		if len(body) < objectHeaderSize {
			return fmt.Errorf("asf: %d trailing bytes in header object", len(body))
		}
		id := decodeGUID(body[:16])
		size := int64(binary.LittleEndian.Uint64(body[16:24]))
		if size < objectHeaderSize || size > int64(len(body)) {
			return fmt.Errorf("asf: object %s has size %d, %d bytes remain", id, size, len(body))
		}
		payload := body[objectHeaderSize:size]
		body = body[size:]

		switch id {
		case guidContentDescription:
			if err := f.parseContentDescription(payload); err != nil {
				return err
			}
			f.children = append(f.children, child{id: id})
		case guidExtContentDesc:
			if err := f.parseExtContentDescription(payload); err != nil {
				return err
			}
			f.children = append(f.children, child{id: id})
		case guidHeaderExtension:
			if err := f.parseHeaderExtension(payload); err != nil {
				return err
			}
			f.children = append(f.children, child{id: id})
		default:
			raw := make([]byte, len(payload))
			copy(raw, payload)
			f.children = append(f.children, child{id: id, raw: raw})
		}
	}
	return nil
}

// parseContentDescription reads the five fixed fields: a run of five
// little-endian lengths followed by five UTF-16LE strings.
func (f *File) parseContentDescription(p []byte) error {
	if len(p) < 10 {
		return fmt.Errorf("asf: truncated content description object")
	}
	off := 10
	for i, name := range contentDescFields {
		n := int(binary.LittleEndian.Uint16(p[i*2:]))
		if off+n > len(p) {
			return fmt.Errorf("asf: content description field %q overruns object", name)
		}
		if n > 0 {
			s, err := decodeUTF16LE(p[off : off+n])
			if err != nil {
				return err
			}
			if s != "" {
				f.attrs = append(f.attrs, NewUnicodeAttribute(name, s))
			}
		}
		off += n
	}
	return nil
}

// parseExtContentDescription reads named attributes: a count, then
// (name length, name, type, value length, value) records.
func (f *File) parseExtContentDescription(p []byte) error {
	if len(p) < 2 {
		return fmt.Errorf("asf: truncated extended content description object")
	}
	count := int(binary.LittleEndian.Uint16(p))
	off := 2
	for i := 0; i < count; i++ {
		if off+2 > len(p) {
			return fmt.Errorf("asf: truncated attribute record %d", i)
		}
		nameLen := int(binary.LittleEndian.Uint16(p[off:]))
		off += 2
		if off+nameLen+4 > len(p) {
			return fmt.Errorf("asf: truncated attribute record %d", i)
		}
		name, err := decodeUTF16LE(p[off : off+nameLen])
		if err != nil {
			return err
		}
		off += nameLen
		typ := AttrType(binary.LittleEndian.Uint16(p[off:]))
		valLen := int(binary.LittleEndian.Uint16(p[off+2:]))
		off += 4
		if off+valLen > len(p) {
			return fmt.Errorf("asf: truncated attribute %q", name)
		}
		v, err := decodeValue(typ, p[off:off+valLen], 4)
		if err != nil {
			return err
		}
		off += valLen
		f.attrs = append(f.attrs, &Attribute{Name: name, Type: typ, Value: v})
	}
	return nil
}

// parseHeaderExtension unwraps the extension and parses the metadata
// and metadata library objects inside it, preserving the rest.
func (f *File) parseHeaderExtension(p []byte) error {
	if len(p) < 22 {
		return fmt.Errorf("asf: truncated header extension object")
	}
	f.hasExt = true
	copy(f.extReserved[:], p[:18])
	dataSize := int(binary.LittleEndian.Uint32(p[18:22]))
	if 22+dataSize > len(p) {
		return fmt.Errorf("asf: header extension data overruns object")
	}
	data := p[22 : 22+dataSize]

	for len(data) > 0 {
		if len(data) < objectHeaderSize {
			return fmt.Errorf("asf: %d trailing bytes in header extension", len(data))
		}
		id := decodeGUID(data[:16])
		size := int64(binary.LittleEndian.Uint64(data[16:24]))
		if size < objectHeaderSize || size > int64(len(data)) {
			return fmt.Errorf("asf: extension object %s has size %d, %d bytes remain", id, size, len(data))
		}
		payload := data[objectHeaderSize:size]
		data = data[size:]

		switch id {
		case guidMetadata, guidMetadataLibrary:
			if err := f.parseMetadataObject(payload, id == guidMetadataLibrary); err != nil {
				return err
			}
			f.extChildren = append(f.extChildren, child{id: id})
		default:
			raw := make([]byte, len(payload))
			copy(raw, payload)
			f.extChildren = append(f.extChildren, child{id: id, raw: raw})
		}
	}
	return nil
}

// parseMetadataObject reads metadata records: (language, stream, name
// length, type, value length, name, value). The plain metadata object
// writes zero where the library stores a language list index.
func (f *File) parseMetadataObject(p []byte, library bool) error {
	if len(p) < 2 {
		return fmt.Errorf("asf: truncated metadata object")
	}
	count := int(binary.LittleEndian.Uint16(p))
	off := 2
	for i := 0; i < count; i++ {
		if off+12 > len(p) {
			return fmt.Errorf("asf: truncated metadata record %d", i)
		}
		lang := binary.LittleEndian.Uint16(p[off:])
		stream := binary.LittleEndian.Uint16(p[off+2:])
		nameLen := int(binary.LittleEndian.Uint16(p[off+4:]))
		typ := AttrType(binary.LittleEndian.Uint16(p[off+6:]))
		valLen := int(binary.LittleEndian.Uint32(p[off+8:]))
		off += 12
		if off+nameLen+valLen > len(p) {
			return fmt.Errorf("asf: truncated metadata record %d", i)
		}
		name, err := decodeUTF16LE(p[off : off+nameLen])
		if err != nil {
			return err
		}
		off += nameLen
		v, err := decodeValue(typ, p[off:off+valLen], 2)
		if err != nil {
			return err
		}
		off += valLen
		if !library {
			lang = 0
		}
		f.attrs = append(f.attrs, &Attribute{Name: name, Type: typ, Value: v, Language: lang, Stream: stream})
	}
	return nil
}

// routing buckets for serialization.
type buckets struct {
	content  map[string]string // the five fixed fields
	extended []*Attribute
	metadata []*Attribute
	library  []*Attribute
}

func (f *File) route() buckets {
	b := buckets{content: make(map[string]string)}
	isContentField := func(name string) bool {
		for _, n := range contentDescFields {
			if n == name {
				return true
			}
		}
		return false
	}
	for _, a := range f.attrs {
		switch {
		case a.Language != 0:
			b.library = append(b.library, a)
		case a.Stream != 0:
			b.metadata = append(b.metadata, a)
		case a.Type == TypeGUID:
			// Only the metadata library may store GUID values.
			b.library = append(b.library, a)
		case a.Type == TypeUnicode && isContentField(a.Name) && b.content[a.Name] == "":
			b.content[a.Name] = a.UnicodeValue()
		default:
			b.extended = append(b.extended, a)
		}
	}
	return b
}

func serializeObject(id uuid.UUID, payload []byte) []byte {
	out := make([]byte, 0, objectHeaderSize+len(payload))
	out = append(out, encodeGUID(id)...)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(objectHeaderSize+len(payload)))
	out = append(out, size[:]...)
	return append(out, payload...)
}

func serializeContentDescription(fields map[string]string) ([]byte, error) {
	var lengths [10]byte
	var values []byte
	for i, name := range contentDescFields {
		v := fields[name]
		if v == "" {
			continue
		}
		enc, err := encodeUTF16LE(v)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint16(lengths[i*2:], uint16(len(enc)))
		values = append(values, enc...)
	}
	return append(lengths[:], values...), nil
}

func serializeExtContentDescription(attrs []*Attribute) ([]byte, error) {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(len(attrs)))
	for _, a := range attrs {
		name, err := encodeUTF16LE(a.Name)
		if err != nil {
			return nil, err
		}
		value, err := encodeValue(a, 4)
		if err != nil {
			return nil, err
		}
		var rec [2]byte
		binary.LittleEndian.PutUint16(rec[:], uint16(len(name)))
		out = append(out, rec[:]...)
		out = append(out, name...)
		binary.LittleEndian.PutUint16(rec[:], uint16(a.Type))
		out = append(out, rec[:]...)
		binary.LittleEndian.PutUint16(rec[:], uint16(len(value)))
		out = append(out, rec[:]...)
		out = append(out, value...)
	}
	return out, nil
}

func serializeMetadataObject(attrs []*Attribute, library bool) ([]byte, error) {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(len(attrs)))
	for _, a := range attrs {
		name, err := encodeUTF16LE(a.Name)
		if err != nil {
			return nil, err
		}
		value, err := encodeValue(a, 2)
		if err != nil {
			return nil, err
		}
		var hdr [12]byte
		lang := a.Language
		if !library {
			lang = 0
		}
		binary.LittleEndian.PutUint16(hdr[0:], lang)
		binary.LittleEndian.PutUint16(hdr[2:], a.Stream)
		binary.LittleEndian.PutUint16(hdr[4:], uint16(len(name)))
		binary.LittleEndian.PutUint16(hdr[6:], uint16(a.Type))
		binary.LittleEndian.PutUint32(hdr[8:], uint32(len(value)))
		out = append(out, hdr[:]...)
		out = append(out, name...)
		out = append(out, value...)
	}
	return out, nil
}

// headerBytes rebuilds the complete header object. filePropsAt reports
// the offset of the file properties payload within the result, -1 when
// the object is absent; Save patches the total file size there.
func (f *File) headerBytes() (out []byte, filePropsAt int, err error) {
	b := f.route()

	// Regenerated children replace their originals in place; ones the
	// file never had are appended when they would not be empty.
	plan := append([]child(nil), f.children...)
	have := func(id uuid.UUID) bool {
		for _, c := range plan {
			if c.id == id {
				return true
			}
		}
		return false
	}
	if len(b.content) > 0 && !have(guidContentDescription) {
		plan = append(plan, child{id: guidContentDescription})
	}
	if len(b.extended) > 0 && !have(guidExtContentDesc) {
		plan = append(plan, child{id: guidExtContentDesc})
	}
	needExt := len(b.metadata) > 0 || len(b.library) > 0
	if needExt && !have(guidHeaderExtension) {
		plan = append(plan, child{id: guidHeaderExtension})
		copy(f.extReserved[:16], encodeGUID(guidHeaderExtReserved))
		binary.LittleEndian.PutUint16(f.extReserved[16:], 6)
	}

	filePropsAt = -1
	var body []byte
	count := 0
	for _, c := range plan {
		var payload []byte
		switch c.id {
		case guidContentDescription:
			if len(b.content) == 0 {
				continue
			}
			if payload, err = serializeContentDescription(b.content); err != nil {
				return nil, -1, err
			}
		case guidExtContentDesc:
			if len(b.extended) == 0 {
				continue
			}
			if payload, err = serializeExtContentDescription(b.extended); err != nil {
				return nil, -1, err
			}
		case guidHeaderExtension:
			if payload, err = f.extensionBytes(b); err != nil {
				return nil, -1, err
			}
		default:
			if c.id == guidFileProperties {
				filePropsAt = headerPreludeSize + len(body) + objectHeaderSize
			}
			payload = c.raw
		}
		body = append(body, serializeObject(c.id, payload)...)
		count++
	}

	out = make([]byte, 0, headerPreludeSize+len(body))
	out = append(out, encodeGUID(guidHeaderObject)...)
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(headerPreludeSize+len(body)))
	out = append(out, n[:]...)
	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], uint32(count))
	out = append(out, cnt[:]...)
	out = append(out, 0x01, 0x02)
	return append(out, body...), filePropsAt, nil
}

func (f *File) extensionBytes(b buckets) ([]byte, error) {
	plan := append([]child(nil), f.extChildren...)
	have := func(id uuid.UUID) bool {
		for _, c := range plan {
			if c.id == id {
				return true
			}
		}
		return false
	}
	if len(b.metadata) > 0 && !have(guidMetadata) {
		plan = append(plan, child{id: guidMetadata})
	}
	if len(b.library) > 0 && !have(guidMetadataLibrary) {
		plan = append(plan, child{id: guidMetadataLibrary})
	}

	var data []byte
	for _, c := range plan {
		var payload []byte
		var err error
		switch c.id {
		case guidMetadata:
			if len(b.metadata) == 0 {
				continue
			}
			if payload, err = serializeMetadataObject(b.metadata, false); err != nil {
				return nil, err
			}
		case guidMetadataLibrary:
			if len(b.library) == 0 {
				continue
			}
			if payload, err = serializeMetadataObject(b.library, true); err != nil {
				return nil, err
			}
		default:
			payload = c.raw
		}
		data = append(data, serializeObject(c.id, payload)...)
	}

	out := make([]byte, 0, 22+len(data))
	out = append(out, f.extReserved[:]...)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
	out = append(out, n[:]...)
	return append(out, data...), nil
}

// Save rewrites the header object of the file at path in place, growing
// or shrinking the file as the metadata requires, and patches the total
// file size recorded in the file properties object.
func (f *File) Save(path string) error {
	header, filePropsAt, err := f.headerBytes()
	if err != nil {
		return err
	}

	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer fh.Close()

	delta := int64(len(header)) - f.headerSize
	switch {
	case delta > 0:
		if err := fileio.InsertBytes(fh, delta, f.headerSize); err != nil {
			return err
		}
	case delta < 0:
		if err := fileio.DeleteBytes(fh, -delta, int64(len(header))); err != nil {
			return err
		}
	}

	if filePropsAt >= 0 && filePropsAt+24 <= len(header) {
		st, err := fh.Stat()
		if err != nil {
			return err
		}
		// The file size qword sits after the 16-byte file ID.
		binary.LittleEndian.PutUint64(header[filePropsAt+16:], uint64(st.Size()))
	}

	if _, err := fh.WriteAt(header, 0); err != nil {
		return err
	}
	if err := fh.Sync(); err != nil {
		return err
	}
	f.headerSize = int64(len(header))
	return nil
}
