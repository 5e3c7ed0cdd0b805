// Package probe derives stream properties (duration, bitrate, sample
// rate) from audio data without decoding more than it has to.
package probe

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tosone/minimp3"
)

// Info describes a probed audio stream.
type Info struct {
	Format     string  `json:"format"`
	Duration   float64 `json:"duration_seconds"`
	Bitrate    int     `json:"bitrate"` // bits per second, averaged for VBR
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Frames     int     `json:"frames,omitempty"`
	VBR        bool    `json:"vbr,omitempty"`
}

// ErrUnknownFormat reports data that none of the probers recognize.
var ErrUnknownFormat = errors.New("probe: unrecognized audio data")

// Detect probes data, trying WAV first (cheap magic check) and MPEG
// audio second.
func Detect(data []byte) (*Info, error) {
	if isWAV(data) {
		return WAV(data)
	}
	if info, err := MP3(data); err == nil {
		return info, nil
	}
	return nil, ErrUnknownFormat
}

func isWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// WAV probes a RIFF/WAVE stream.
func WAV(data []byte) (*Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if dec.Err() != nil {
		return nil, fmt.Errorf("probe: read WAV header: %w", dec.Err())
	}
	format := dec.Format()
	if format == nil || format.SampleRate == 0 {
		return nil, fmt.Errorf("probe: WAV stream has no format chunk")
	}
	dur, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("probe: WAV duration: %w", err)
	}
	return &Info{
		Format:     "wav",
		Duration:   dur.Seconds(),
		Bitrate:    pcmBitrate(format, int(dec.BitDepth)),
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
	}, nil
}

// pcmBitrate is the uncompressed stream rate in bits per second.
func pcmBitrate(f *audio.Format, bitDepth int) int {
	return f.SampleRate * f.NumChannels * bitDepth
}

// MP3 probes an MPEG audio stream by walking its frame headers. Streams
// whose headers cannot be walked (free-format bitrate, junk before the
// first sync) fall back to a full decode.
func MP3(data []byte) (*Info, error) {
	data = skipID3v2(data)
	data = trimID3v1(data)

	if info := walkFrames(data); info != nil {
		return info, nil
	}
	return decodeFull(data)
}

// skipID3v2 steps over a leading ID3v2 tag so the walk starts at the
// first audio frame.
func skipID3v2(data []byte) []byte {
	if len(data) < 10 || !bytes.Equal(data[:3], []byte("ID3")) {
		return data
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 |
		int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	total := 10 + size
	if data[5]&0x10 != 0 {
		total += 10 // footer
	}
	if total > len(data) {
		return data
	}
	return data[total:]
}

func trimID3v1(data []byte) []byte {
	if len(data) >= 128 && bytes.Equal(data[len(data)-128:len(data)-125], []byte("TAG")) {
		return data[:len(data)-128]
	}
	return data
}

// walkFrames steps frame to frame, summing per-frame durations. Nil
// when no usable frame sequence is found.
func walkFrames(data []byte) *Info {
	var (
		frames     int
		duration   float64
		bitrateSum int64
		firstRate  int
		vbr        bool
		sampleRate int
		channels   int
	)
	o := 0
	for o+4 <= len(data) {
		h, ok := parseFrameHeader(data[o : o+4])
		if !ok {
			// Resync: a corrupt stretch should not end the walk.
			o++
			continue
		}
		if o+h.frameLength > len(data) {
			break
		}
		frames++
		duration += float64(h.samplesPerFrame) / float64(h.sampleRate)
		bitrateSum += int64(h.bitrate)
		if firstRate == 0 {
			firstRate = h.bitrate
			sampleRate = h.sampleRate
			channels = h.channels
		} else if h.bitrate != firstRate {
			vbr = true
		}
		o += h.frameLength
	}
	if frames < 2 {
		return nil
	}
	return &Info{
		Format:     "mp3",
		Duration:   duration,
		Bitrate:    int(bitrateSum / int64(frames)),
		SampleRate: sampleRate,
		Channels:   channels,
		Frames:     frames,
		VBR:        vbr,
	}
}

// decodeFull decodes the whole stream and measures the PCM output.
func decodeFull(data []byte) (*Info, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return nil, fmt.Errorf("probe: decode MPEG audio: %w", err)
	}
	defer dec.Close()
	if dec.SampleRate == 0 || dec.Channels == 0 {
		return nil, fmt.Errorf("probe: MPEG stream has no audio")
	}
	samplesPerChannel := len(pcm) / 2 / dec.Channels // 16-bit samples
	duration := float64(samplesPerChannel) / float64(dec.SampleRate)
	info := &Info{
		Format:     "mp3",
		Duration:   duration,
		SampleRate: dec.SampleRate,
		Channels:   dec.Channels,
	}
	if duration > 0 {
		info.Bitrate = int(float64(len(data)*8) / duration)
	}
	return info, nil
}

// DurationMillis returns the probed duration in integer milliseconds,
// the unit the TLEN frame uses.
func (i *Info) DurationMillis() int64 {
	return time.Duration(i.Duration * float64(time.Second)).Milliseconds()
}
