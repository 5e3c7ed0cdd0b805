package id3v2

import (
	"encoding/binary"
	"fmt"
	"os"

	"tagforge-backend/fileio"
)

// SaveOptions control serialization. The zero value means ID3v2.4 with
// the default padding.
type SaveOptions struct {
	// Version is the target major version, 3 or 4. 0 means 4.
	Version byte
	// Padding is the number of zero bytes appended after the frames so
	// later edits can grow without rewriting the audio. 0 means 1024;
	// negative means none.
	Padding int
}

const defaultPadding = 1024

func (o SaveOptions) version() (byte, error) {
	switch o.Version {
	case 0, 4:
		return 4, nil
	case 3:
		return 3, nil
	}
	return 0, fmt.Errorf("id3v2: cannot write version 2.%d", o.Version)
}

func (o SaveOptions) padding() int {
	if o.Padding == 0 {
		return defaultPadding
	}
	if o.Padding < 0 {
		return 0
	}
	return o.Padding
}

// Bytes serializes the tag, header and padding included.
func (t *Tag) Bytes(opts SaveOptions) ([]byte, error) {
	version, err := opts.version()
	if err != nil {
		return nil, err
	}
	frames, err := t.frameBytes(version)
	if err != nil {
		return nil, err
	}
	padding := opts.padding()
	if len(frames)+padding > synchsafeMax {
		return nil, fmt.Errorf("id3v2: tag too large (%d bytes)", len(frames)+padding)
	}
	return assembleTag(version, frames, padding), nil
}

func assembleTag(version byte, frames []byte, padding int) []byte {
	size := len(frames) + padding
	out := make([]byte, 0, headerSize+size)
	out = append(out, 'I', 'D', '3', version, 0, 0)
	out = append(out, encodeSynchsafe(size)...)
	out = append(out, frames...)
	out = append(out, make([]byte, padding)...)
	return out
}

// frameBytes serializes all frames for the target version, headers
// included, without outer header or padding.
func (t *Tag) frameBytes(version byte) ([]byte, error) {
	frames := t.Frames()
	if version == 3 {
		frames = downgradeFrames(frames)
	}
	var out []byte
	for _, f := range frames {
		payload, err := encodeFrame(f, version)
		if err != nil {
			return nil, err
		}
		hdr, err := frameHeader(f, version, len(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, hdr...)
		out = append(out, payload...)
	}
	return out, nil
}

func frameHeader(f *Frame, version byte, size int) ([]byte, error) {
	hdr := make([]byte, headerSize)
	copy(hdr, f.ID)
	switch version {
	case 4:
		if size > synchsafeMax {
			return nil, fmt.Errorf("id3v2: frame %s payload too large (%d bytes)", f.ID, size)
		}
		copy(hdr[4:8], encodeSynchsafe(size))
		binary.BigEndian.PutUint16(hdr[8:10], uint16(f.Flags))
	case 3:
		binary.BigEndian.PutUint32(hdr[4:8], uint32(size))
		binary.BigEndian.PutUint16(hdr[8:10], translateFlagsToV23(f.Flags))
	}
	return hdr, nil
}

// translateFlagsToV23 is the inverse of translateV23Flags. The 2.4-only
// unsynchronised and data-length bits have no 2.3 home and are dropped.
func translateFlagsToV23(f FrameFlags) uint16 {
	var raw uint16
	if f&FlagTagAlterDiscard != 0 {
		raw |= 0x8000
	}
	if f&FlagFileAlterDiscard != 0 {
		raw |= 0x4000
	}
	if f&FlagReadOnly != 0 {
		raw |= 0x2000
	}
	if f&FlagCompressed != 0 {
		raw |= 0x0080
	}
	if f&FlagEncrypted != 0 {
		raw |= 0x0040
	}
	if f&FlagGrouped != 0 {
		raw |= 0x0020
	}
	return raw
}

// v24OnlyIDs have no ID3v2.3 representation and are dropped on
// downgrade, except for the timestamp frames handled explicitly.
var v24OnlyIDs = map[string]bool{
	"ASPI": true, "EQU2": true, "RVA2": true, "SEEK": true, "SIGN": true,
	"TDEN": true, "TDRL": true, "TDTG": true, "TMOO": true, "TPRO": true,
	"TSOA": true, "TSOP": true, "TSOT": true, "TSST": true,
}

// downgradeFrames rewrites a 2.4 frame list for a 2.3 serialization:
// TDRC splits back into TYER/TDAT/TIME, TDOR becomes TORY, TIPL and
// TMCL merge into IPLS, frames 2.3 cannot express are dropped, and text
// encodings 2.3 does not know are clamped to UTF-16. The input frames
// are never mutated.
func downgradeFrames(frames []*Frame) []*Frame {
	out := make([]*Frame, 0, len(frames)+2)
	var people [][2]string
	peopleEnc := EncodingLatin1

	for _, f := range frames {
		switch {
		case f.IsUnknown():
			out = append(out, f)
			continue
		case f.ID == "TDRC":
			out = append(out, splitRecordingTime(f)...)
			continue
		case f.ID == "TDOR":
			if ts, ok := firstStamp(f); ok && ts.Year >= 0 {
				nf := cloneFrame(f)
				nf.ID = "TORY"
				nf.Values = map[string]any{"text": []string{fmt.Sprintf("%04d", ts.Year)}}
				out = append(out, nf)
			}
			continue
		case f.ID == "TIPL" || f.ID == "TMCL":
			if pairs, ok := f.Values["people"].([][2]string); ok {
				people = append(people, pairs...)
				if f.Encoding.wide() {
					peopleEnc = EncodingUTF16
				}
			}
			continue
		case v24OnlyIDs[f.ID]:
			continue
		}
		out = append(out, clampEncoding(f))
	}

	if len(people) > 0 {
		f := NewFrame("IPLS")
		f.Encoding = peopleEnc
		f.Values["people"] = people
		out = append(out, clampEncoding(f))
	}
	return out
}

func firstStamp(f *Frame) (TimeStamp, bool) {
	stamps, ok := f.Values["text"].([]TimeStamp)
	if !ok || len(stamps) == 0 {
		return TimeStamp{}, false
	}
	return stamps[0], true
}

// splitRecordingTime turns TDRC into the TYER/TDAT/TIME triple 2.3
// expects. TDAT is DDMM and TIME is HHMM.
func splitRecordingTime(f *Frame) []*Frame {
	ts, ok := firstStamp(f)
	if !ok || ts.Year < 0 {
		return nil
	}
	out := []*Frame{NewTextFrame("TYER", fmt.Sprintf("%04d", ts.Year))}
	if ts.Month >= 0 && ts.Day >= 0 {
		out = append(out, NewTextFrame("TDAT", fmt.Sprintf("%02d%02d", ts.Day, ts.Month)))
		if ts.Hour >= 0 && ts.Minute >= 0 {
			out = append(out, NewTextFrame("TIME", fmt.Sprintf("%02d%02d", ts.Hour, ts.Minute)))
		}
	}
	for _, nf := range out {
		nf.Encoding = EncodingLatin1
	}
	return out
}

func cloneFrame(f *Frame) *Frame {
	nf := *f
	nf.Values = make(map[string]any, len(f.Values))
	for k, v := range f.Values {
		nf.Values[k] = v
	}
	return &nf
}

// clampEncoding forces encodings 2.3 does not define down to UTF-16.
func clampEncoding(f *Frame) *Frame {
	needsClamp := func(e Encoding) bool {
		return e == EncodingUTF8 || e == EncodingUTF16BE
	}
	enc, hasEnc := f.Values["enc"].(Encoding)
	if (!hasEnc || !needsClamp(enc)) && !needsClamp(f.Encoding) {
		return f
	}
	nf := cloneFrame(f)
	if needsClamp(nf.Encoding) {
		nf.Encoding = EncodingUTF16
	}
	if hasEnc && needsClamp(enc) {
		nf.Values["enc"] = EncodingUTF16
	}
	return nf
}

// Save writes the tag to the start of the file at path, resizing the
// file in place. Existing tag space is reused as padding when the new
// tag fits; otherwise the file grows by exactly what is needed plus the
// requested padding. The file's audio data is never rewritten unless it
// has to move.
func (t *Tag) Save(path string, opts SaveOptions) error {
	version, err := opts.version()
	if err != nil {
		return err
	}
	frames, err := t.frameBytes(version)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	space, err := tagSpace(f)
	if err != nil {
		return err
	}

	need := headerSize + len(frames)
	padding := opts.padding()
	if space >= need {
		// Reuse the hole the old tag occupied.
		padding = space - need
	}
	// Bound the size before touching the file so a failed save never
	// leaves it resized.
	if len(frames)+padding > synchsafeMax {
		return fmt.Errorf("id3v2: tag too large (%d bytes)", len(frames)+padding)
	}
	if space < need {
		if err := fileio.InsertBytes(f, int64(need+padding-space), int64(space)); err != nil {
			return err
		}
	}
	blob := assembleTag(version, frames, padding)
	if _, err := f.WriteAt(blob, 0); err != nil {
		return err
	}
	return f.Sync()
}
