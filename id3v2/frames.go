package id3v2

import (
	"fmt"
	"strings"
)

// FrameFlags use the v2.4 bit layout regardless of the version read
// from disk; the parser translates v2.3 flag words on the way in and
// the writer translates back on the way out.
type FrameFlags uint16

const (
	FlagTagAlterDiscard  FrameFlags = 0x4000
	FlagFileAlterDiscard FrameFlags = 0x2000
	FlagReadOnly         FrameFlags = 0x1000
	FlagGrouped          FrameFlags = 0x0040
	FlagCompressed       FrameFlags = 0x0008
	FlagEncrypted        FrameFlags = 0x0004
	FlagUnsynchronised   FrameFlags = 0x0002
	FlagDataLength       FrameFlags = 0x0001
)

// Frame is one tag frame. Known frames carry decoded Values keyed by
// their spec names; frames the registry does not describe keep their
// payload verbatim in Raw so a re-save never loses data it could not
// interpret.
type Frame struct {
	ID       string
	Flags    FrameFlags
	Encoding Encoding
	Values   map[string]any
	Raw      []byte

	strict  bool
	version byte // target version during encode; 0 means 2.4
}

// NewFrame returns an empty known frame ready to be filled in. Text
// written through it defaults to UTF-8, the 2.4 default.
func NewFrame(id string) *Frame {
	return &Frame{ID: id, Encoding: EncodingUTF8, Values: make(map[string]any)}
}

// NewTextFrame builds a text (or timestamp) frame holding values.
func NewTextFrame(id string, values ...string) *Frame {
	f := NewFrame(id)
	if _, ok := registry[id]; !ok {
		f.Values["text"] = append([]string(nil), values...)
		return f
	}
	if isTimestampID(id) {
		stamps := make([]TimeStamp, 0, len(values))
		for _, v := range values {
			ts, err := ParseTimeStamp(v)
			if err != nil {
				continue
			}
			stamps = append(stamps, ts)
		}
		f.Values["text"] = stamps
		return f
	}
	for _, u := range urlIDs {
		if u == id {
			url := ""
			if len(values) > 0 {
				url = values[0]
			}
			f.Values["url"] = url
			return f
		}
	}
	f.Values["text"] = append([]string(nil), values...)
	return f
}

// IsUnknown reports whether the frame was preserved verbatim because no
// specification describes it.
func (f *Frame) IsUnknown() bool { return f.Raw != nil && f.Values == nil }

// Texts returns the frame's text values, rendering timestamps as their
// string form. Nil for non-text frames.
func (f *Frame) Texts() []string {
	switch v := f.Values["text"].(type) {
	case []string:
		return v
	case []TimeStamp:
		out := make([]string, len(v))
		for i, ts := range v {
			out[i] = ts.String()
		}
		return out
	}
	return nil
}

// Text returns the first text value, or "".
func (f *Frame) Text() string {
	if t := f.Texts(); len(t) > 0 {
		return t[0]
	}
	return ""
}

// Key returns the container key: the frame ID plus, for frame types
// that may legally repeat, a disambiguator such as the description,
// language or owner. Setting a frame with an existing key replaces it.
func (f *Frame) Key() string {
	str := func(name string) string {
		s, _ := f.Values[name].(string)
		return s
	}
	switch f.ID {
	case "TXXX", "WXXX", "APIC", "GEOB", "RVA2":
		return f.ID + ":" + str("desc")
	case "COMM", "USLT", "SYLT":
		return f.ID + ":" + str("desc") + ":" + str("lang")
	case "UFID", "PRIV":
		return f.ID + ":" + str("owner")
	case "POPM":
		return f.ID + ":" + str("email")
	}
	return f.ID
}

func (f *Frame) String() string {
	if f.IsUnknown() {
		return fmt.Sprintf("%s (unknown, %d bytes)", f.ID, len(f.Raw))
	}
	if t := f.Texts(); t != nil {
		return fmt.Sprintf("%s %s", f.ID, strings.Join(t, " / "))
	}
	return fmt.Sprintf("%s %v", f.ID, f.Values)
}

var plainTextIDs = []string{
	"TALB", "TBPM", "TCOM", "TCON", "TCOP", "TDLY", "TENC", "TEXT",
	"TFLT", "TIT1", "TIT2", "TIT3", "TKEY", "TLAN", "TLEN", "TMED",
	"TMOO", "TOAL", "TOFN", "TOLY", "TOPE", "TOWN", "TPE1", "TPE2",
	"TPE3", "TPE4", "TPOS", "TPRO", "TPUB", "TRCK", "TRSN", "TRSO",
	"TSOA", "TSOP", "TSOT", "TSO2", "TSOC", "TSRC", "TSSE", "TSST",
	// 2.3-only frames, still decodable so upgrades can consume them.
	"TYER", "TDAT", "TIME", "TORY", "TRDA", "TSIZ",
}

var timestampIDs = []string{"TDEN", "TDOR", "TDRC", "TDRL", "TDTG"}

var urlIDs = []string{"WCOM", "WCOP", "WOAF", "WOAR", "WOAS", "WORS", "WPAY", "WPUB"}

func isTimestampID(id string) bool {
	for _, t := range timestampIDs {
		if t == id {
			return true
		}
	}
	return false
}

// registry maps each known frame identifier to the ordered spec list
// that decodes its payload. Identifiers absent from the registry are
// preserved as unknown frames.
var registry = map[string][]Spec{}

// KnownTextFrame reports whether id names a text, timestamp or URL
// frame that NewTextFrame can build a writable frame for.
func KnownTextFrame(id string) bool {
	specs, ok := registry[id]
	if !ok {
		return false
	}
	switch specs[len(specs)-1].(type) {
	case multiTextSpec, multiTimeSpec, latin1TextSpec:
		return true
	}
	return false
}

func init() {
	text := []Spec{encodingSpec{"enc"}, multiTextSpec{specName: "text", sep: "/"}}
	for _, id := range plainTextIDs {
		registry[id] = text
	}
	for _, id := range timestampIDs {
		registry[id] = []Spec{encodingSpec{"enc"}, multiTimeSpec{"text"}}
	}
	for _, id := range urlIDs {
		registry[id] = []Spec{latin1TextSpec{"url"}}
	}
	for _, id := range []string{"TIPL", "TMCL", "IPLS"} {
		registry[id] = []Spec{encodingSpec{"enc"}, pairListSpec{"people"}}
	}
	registry["TXXX"] = []Spec{encodingSpec{"enc"}, encodedTextSpec{"desc"}, multiTextSpec{specName: "text", sep: "/"}}
	registry["WXXX"] = []Spec{encodingSpec{"enc"}, encodedTextSpec{"desc"}, latin1TextSpec{"url"}}
	registry["COMM"] = []Spec{encodingSpec{"enc"}, languageSpec{"lang"}, encodedTextSpec{"desc"}, multiTextSpec{specName: "text", sep: "/"}}
	registry["USLT"] = []Spec{encodingSpec{"enc"}, languageSpec{"lang"}, encodedTextSpec{"desc"}, multiTextSpec{specName: "text", sep: "/"}}
	registry["SYLT"] = []Spec{encodingSpec{"enc"}, languageSpec{"lang"}, byteSpec{"format"}, byteSpec{"type"}, encodedTextSpec{"desc"}, syncTextSpec{"text"}}
	registry["APIC"] = []Spec{encodingSpec{"enc"}, latin1TextSpec{"mime"}, byteSpec{"type"}, encodedTextSpec{"desc"}, binarySpec{"data"}}
	registry["GEOB"] = []Spec{encodingSpec{"enc"}, latin1TextSpec{"mime"}, encodedTextSpec{"filename"}, encodedTextSpec{"desc"}, binarySpec{"data"}}
	registry["UFID"] = []Spec{latin1TextSpec{"owner"}, binarySpec{"data"}}
	registry["PRIV"] = []Spec{latin1TextSpec{"owner"}, binarySpec{"data"}}
	registry["MCDI"] = []Spec{binarySpec{"data"}}
	registry["PCNT"] = []Spec{counterSpec{"count"}}
	registry["POPM"] = []Spec{latin1TextSpec{"email"}, byteSpec{"rating"}, counterSpec{"count"}}
	registry["RVA2"] = []Spec{latin1TextSpec{"desc"}, byteSpec{"channel"}, volumeAdjustmentSpec{"gain"}, volumePeakSpec{"peak"}}
	registry["ASPI"] = []Spec{integerSpec{"start", 4}, integerSpec{"length", 4}, integerSpec{"points", 2}, byteSpec{"bits"}, aspiIndexSpec{"index"}}
}

// v22Frames maps ID3v2.2 3-character identifiers to their modern
// 4-character equivalents. Unmapped 2.2 identifiers are skipped.
var v22Frames = map[string]string{
	"BUF": "RBUF", "CNT": "PCNT", "COM": "COMM", "ETC": "ETCO",
	"GEO": "GEOB", "IPL": "IPLS", "MCI": "MCDI", "MLL": "MLLT",
	"PIC": "APIC", "POP": "POPM", "REV": "RVRB", "SLT": "SYLT",
	"TAL": "TALB", "TBP": "TBPM", "TCM": "TCOM", "TCO": "TCON",
	"TCR": "TCOP", "TDA": "TDAT", "TDY": "TDLY", "TEN": "TENC",
	"TFT": "TFLT", "TIM": "TIME", "TKE": "TKEY", "TLA": "TLAN",
	"TLE": "TLEN", "TMT": "TMED", "TOA": "TOPE", "TOF": "TOFN",
	"TOL": "TOLY", "TOR": "TORY", "TOT": "TOAL", "TP1": "TPE1",
	"TP2": "TPE2", "TP3": "TPE3", "TP4": "TPE4", "TPA": "TPOS",
	"TPB": "TPUB", "TRC": "TSRC", "TRD": "TRDA", "TRK": "TRCK",
	"TSI": "TSIZ", "TSS": "TSSE", "TT1": "TIT1", "TT2": "TIT2",
	"TT3": "TIT3", "TXT": "TEXT", "TXX": "TXXX", "TYE": "TYER",
	"UFI": "UFID", "ULT": "USLT", "WAF": "WOAF", "WAR": "WOAR",
	"WAS": "WOAS", "WCM": "WCOM", "WCP": "WCOP", "WPB": "WPUB",
	"WXX": "WXXX",
}

// decodeFrame runs the registry specs over payload. Unknown identifiers
// come back as verbatim frames; a spec failure is a JunkFrameError so
// the caller can skip just this frame.
func decodeFrame(id string, flags FrameFlags, payload []byte, strict bool) (*Frame, error) {
	specs, ok := registry[id]
	if !ok {
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return &Frame{ID: id, Flags: flags, Raw: raw}, nil
	}
	f := &Frame{ID: id, Flags: flags, Values: make(map[string]any), strict: strict}
	data := payload
	for _, s := range specs {
		v, rest, err := s.Read(f, data)
		if err != nil {
			return nil, junk(id, err)
		}
		f.Values[s.Name()] = v
		data = rest
	}
	return f, nil
}

// encodeFrame serializes a frame's payload (no header) for the given
// major version.
func encodeFrame(f *Frame, version byte) ([]byte, error) {
	if f.IsUnknown() {
		return f.Raw, nil
	}
	specs, ok := registry[f.ID]
	if !ok {
		return nil, fmt.Errorf("id3v2: no specification for frame %q", f.ID)
	}
	f.version = version
	var out []byte
	for _, s := range specs {
		v, ok := f.Values[s.Name()]
		if !ok {
			if s.Name() == "enc" {
				v = f.Encoding
			} else {
				return nil, fmt.Errorf("id3v2: frame %s is missing field %q", f.ID, s.Name())
			}
		}
		b, err := s.Write(f, v)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
