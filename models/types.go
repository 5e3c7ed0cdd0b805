// Package models holds the HTTP request and response types.
package models

// FrameInfo is one decoded tag frame in a read response. Text carries
// the values of text frames; Fields carries everything else a frame
// type exposes (language, description, binary payload sizes). Unknown
// frames report only their identifier and size.
type FrameInfo struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Text   []string       `json:"text,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Size   int            `json:"size,omitempty"`
}

// AttributeInfo is one ASF metadata attribute in a read response.
type AttributeInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    any    `json:"value"`
	Language uint16 `json:"language,omitempty"`
	Stream   uint16 `json:"stream,omitempty"`
}

// StreamInfo is the probed stream description attached to responses
// when the audio data itself is readable.
type StreamInfo struct {
	Duration   float64 `json:"duration_seconds"`
	Bitrate    int     `json:"bitrate"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	VBR        bool    `json:"vbr,omitempty"`
}

// ReadResponse is the result of POST /tags/read.
type ReadResponse struct {
	Success    bool            `json:"success"`
	Format     string          `json:"format,omitempty"` // "ID3v2.4.0", "ID3v1", "ASF"
	Frames     []FrameInfo     `json:"frames,omitempty"`
	Attributes []AttributeInfo `json:"attributes,omitempty"`
	Stream     *StreamInfo     `json:"stream,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteRequest documents the form fields POST /tags/write accepts. The
// handler reads them from the multipart form rather than from JSON, so
// the struct exists for binding the non-file fields and for the API
// docs.
type WriteRequest struct {
	Title     string `form:"title"`
	Artist    string `form:"artist"` // multiple values joined with '/'
	Album     string `form:"album"`
	Genre     string `form:"genre"`
	Year      string `form:"year"` // full or partial ISO-8601 timestamp
	Track     string `form:"track"`
	Comment   string `form:"comment"`
	SetLength bool   `form:"set_length"` // fill TLEN from the probed duration
	Version   int    `form:"version"`    // 3 or 4, default 4
}
