package id3v2

import "errors"

var errBadUnsync = errors.New("id3v2: invalid unsynchronized data")

// unsyncEncode stuffs a zero byte after every 0xFF that is followed by a
// byte >= 0xE0 or by 0x00, so that no false MPEG frame sync survives in
// the tag. A trailing 0xFF also gets a stuffing byte.
func unsyncEncode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	safe := true
	for _, c := range data {
		if safe {
			out = append(out, c)
			safe = c != 0xFF
			continue
		}
		if c >= 0xE0 || c == 0x00 {
			out = append(out, 0x00)
		}
		out = append(out, c)
		safe = c != 0xFF
	}
	if !safe {
		out = append(out, 0x00)
	}
	return out
}

// unsyncDecode removes the stuffing bytes inserted by unsyncEncode. A
// 0xFF followed by a byte >= 0xE0 means the data was never properly
// unsynchronized and is reported as an error.
func unsyncDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	safe := true
	for _, c := range data {
		if safe {
			out = append(out, c)
			safe = c != 0xFF
			continue
		}
		if c >= 0xE0 {
			return nil, errBadUnsync
		}
		if c != 0x00 {
			out = append(out, c)
		}
		safe = true
	}
	if !safe {
		return nil, errBadUnsync
	}
	return out, nil
}
