package asf

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// AttrType is the wire type of an attribute value.
type AttrType uint16

const (
	TypeUnicode AttrType = 0 // UTF-16LE string, null terminated on disk
	TypeBytes   AttrType = 1
	TypeBool    AttrType = 2
	TypeDWord   AttrType = 3 // uint32
	TypeQWord   AttrType = 4 // uint64
	TypeWord    AttrType = 5 // uint16
	TypeGUID    AttrType = 6
)

func (t AttrType) String() string {
	switch t {
	case TypeUnicode:
		return "unicode"
	case TypeBytes:
		return "bytes"
	case TypeBool:
		return "bool"
	case TypeDWord:
		return "dword"
	case TypeQWord:
		return "qword"
	case TypeWord:
		return "word"
	case TypeGUID:
		return "guid"
	}
	return fmt.Sprintf("AttrType(%d)", uint16(t))
}

// Attribute is one named metadata value. Language and Stream are zero
// for values stored in the content description objects; a non-zero
// Stream routes the value to the metadata object and a non-zero
// Language to the metadata library object, which are the only homes
// those fields have.
type Attribute struct {
	Name     string
	Type     AttrType
	Value    any
	Language uint16
	Stream   uint16
}

// NewUnicodeAttribute is the common case: a named string value.
func NewUnicodeAttribute(name, value string) *Attribute {
	return &Attribute{Name: name, Type: TypeUnicode, Value: value}
}

func (a *Attribute) String() string {
	return fmt.Sprintf("%s=%v (%s)", a.Name, a.Value, a.Type)
}

// UnicodeValue returns the string value, "" for non-string attributes.
func (a *Attribute) UnicodeValue() string {
	s, _ := a.Value.(string)
	return s
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUTF16LE(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("asf: decode UTF-16LE: %w", err)
	}
	// Strip the on-disk null terminator.
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return string(out), nil
}

func encodeUTF16LE(s string) ([]byte, error) {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("asf: encode UTF-16LE: %w", err)
	}
	return append(out, 0, 0), nil
}

// decodeValue interprets raw per typ. boolSize is the width bools use
// in the containing object: 4 bytes in the extended content description
// object, 2 in the metadata objects.
func decodeValue(typ AttrType, raw []byte, boolSize int) (any, error) {
	switch typ {
	case TypeUnicode:
		return decodeUTF16LE(raw)
	case TypeBytes:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case TypeBool:
		if len(raw) < boolSize {
			return nil, fmt.Errorf("asf: truncated bool value (%d bytes)", len(raw))
		}
		for _, c := range raw[:boolSize] {
			if c != 0 {
				return true, nil
			}
		}
		return false, nil
	case TypeDWord:
		if len(raw) < 4 {
			return nil, fmt.Errorf("asf: truncated dword value (%d bytes)", len(raw))
		}
		return binary.LittleEndian.Uint32(raw), nil
	case TypeQWord:
		if len(raw) < 8 {
			return nil, fmt.Errorf("asf: truncated qword value (%d bytes)", len(raw))
		}
		return binary.LittleEndian.Uint64(raw), nil
	case TypeWord:
		if len(raw) < 2 {
			return nil, fmt.Errorf("asf: truncated word value (%d bytes)", len(raw))
		}
		return binary.LittleEndian.Uint16(raw), nil
	case TypeGUID:
		if len(raw) < 16 {
			return nil, fmt.Errorf("asf: truncated guid value (%d bytes)", len(raw))
		}
		return decodeGUID(raw), nil
	}
	return nil, fmt.Errorf("asf: unknown attribute type %d", typ)
}

// encodeValue serializes a.Value per a.Type. See decodeValue for
// boolSize.
func encodeValue(a *Attribute, boolSize int) ([]byte, error) {
	fail := func() ([]byte, error) {
		return nil, fmt.Errorf("asf: attribute %q: %T is not a %s value", a.Name, a.Value, a.Type)
	}
	switch a.Type {
	case TypeUnicode:
		s, ok := a.Value.(string)
		if !ok {
			return fail()
		}
		return encodeUTF16LE(s)
	case TypeBytes:
		b, ok := a.Value.([]byte)
		if !ok {
			return fail()
		}
		return b, nil
	case TypeBool:
		v, ok := a.Value.(bool)
		if !ok {
			return fail()
		}
		out := make([]byte, boolSize)
		if v {
			out[0] = 1
		}
		return out, nil
	case TypeDWord:
		v, ok := a.Value.(uint32)
		if !ok {
			return fail()
		}
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, v)
		return out, nil
	case TypeQWord:
		v, ok := a.Value.(uint64)
		if !ok {
			return fail()
		}
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, v)
		return out, nil
	case TypeWord:
		v, ok := a.Value.(uint16)
		if !ok {
			return fail()
		}
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, v)
		return out, nil
	case TypeGUID:
		v, ok := a.Value.(uuid.UUID)
		if !ok {
			return fail()
		}
		return encodeGUID(v), nil
	}
	return nil, fmt.Errorf("asf: unknown attribute type %d", a.Type)
}
