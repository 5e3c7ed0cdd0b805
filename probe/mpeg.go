package probe

import "encoding/binary"

// frameHeader is one parsed MPEG audio frame header.
type frameHeader struct {
	version         int // 1, 2 or 25 (for MPEG 2.5)
	layer           int // 1, 2 or 3
	bitrate         int // bits per second
	sampleRate      int
	padding         bool
	channels        int
	frameLength     int // bytes, header included
	samplesPerFrame int
}

// bitrateTable is indexed by [row][bitrate index] in kbit/s. Rows: MPEG1
// layers I/II/III, then MPEG2/2.5 layer I and layers II+III (which
// share a table).
var bitrateTable = [5][16]int{
	{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
}

var sampleRateTable = map[int][3]int{
	1:  {44100, 48000, 32000},
	2:  {22050, 24000, 16000},
	25: {11025, 12000, 8000},
}

// parseFrameHeader decodes a 4-byte MPEG audio frame header. ok is
// false for anything that is not a valid header, including reserved
// version, layer, bitrate and sample rate codes.
func parseFrameHeader(b []byte) (frameHeader, bool) {
	raw := binary.BigEndian.Uint32(b)
	if raw&0xFFE00000 != 0xFFE00000 {
		return frameHeader{}, false
	}

	var h frameHeader
	switch raw >> 19 & 0x3 {
	case 0:
		h.version = 25
	case 2:
		h.version = 2
	case 3:
		h.version = 1
	default:
		return frameHeader{}, false
	}
	switch raw >> 17 & 0x3 {
	case 1:
		h.layer = 3
	case 2:
		h.layer = 2
	case 3:
		h.layer = 1
	default:
		return frameHeader{}, false
	}

	row := h.layer - 1
	if h.version != 1 {
		row = 3
		if h.layer > 1 {
			row = 4
		}
	}
	kbps := bitrateTable[row][raw>>12&0xF]
	rateIdx := raw >> 10 & 0x3
	if kbps == 0 || rateIdx == 3 {
		return frameHeader{}, false
	}
	rate := sampleRateTable[h.version][rateIdx]
	h.bitrate = kbps * 1000
	h.sampleRate = rate
	h.padding = raw>>9&0x1 == 1

	h.channels = 2
	if raw>>6&0x3 == 3 { // mono
		h.channels = 1
	}

	switch {
	case h.layer == 1:
		h.samplesPerFrame = 384
	case h.layer == 2 || h.version == 1:
		h.samplesPerFrame = 1152
	default:
		h.samplesPerFrame = 576 // layer III, MPEG 2 / 2.5
	}

	pad := 0
	if h.padding {
		pad = 1
	}
	if h.layer == 1 {
		h.frameLength = (12*h.bitrate/h.sampleRate + pad) * 4
	} else {
		h.frameLength = h.samplesPerFrame/8*h.bitrate/h.sampleRate + pad
	}
	if h.frameLength <= 4 {
		return frameHeader{}, false
	}
	return h, true
}
