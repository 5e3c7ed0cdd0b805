package id3v2

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeStamp is a partial ISO-8601 date/time of the form
// YYYY[-MM[-DD[ HH[:MM[:SS]]]]]. Components are -1 when absent; a
// component may only be present if everything coarser is.
type TimeStamp struct {
	Year, Month, Day, Hour, Minute, Second int
}

// ParseTimeStamp parses a timestamp string. Both ' ' and 'T' are
// accepted between date and time, the way files in the wild write them.
func ParseTimeStamp(s string) (TimeStamp, error) {
	ts := TimeStamp{Year: -1, Month: -1, Day: -1, Hour: -1, Minute: -1, Second: -1}
	s = strings.TrimSpace(s)
	if s == "" {
		return ts, nil
	}
	datePart := s
	timePart := ""
	if i := strings.IndexAny(s, " T"); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
	}

	fields := []*int{&ts.Year, &ts.Month, &ts.Day}
	for i, part := range strings.SplitN(datePart, "-", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return ts, fmt.Errorf("id3v2: bad timestamp %q: %w", s, err)
		}
		*fields[i] = n
	}
	if timePart != "" {
		fields = []*int{&ts.Hour, &ts.Minute, &ts.Second}
		for i, part := range strings.SplitN(timePart, ":", 3) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return ts, fmt.Errorf("id3v2: bad timestamp %q: %w", s, err)
			}
			*fields[i] = n
		}
	}
	return ts, nil
}

// String reassembles only the components present, with '-', ' ' and ':'
// separators positionally.
func (t TimeStamp) String() string {
	parts := []struct {
		sep   string
		width int
		v     int
	}{
		{"", 4, t.Year},
		{"-", 2, t.Month},
		{"-", 2, t.Day},
		{" ", 2, t.Hour},
		{":", 2, t.Minute},
		{":", 2, t.Second},
	}
	var b strings.Builder
	for _, p := range parts {
		if p.v < 0 {
			break
		}
		fmt.Fprintf(&b, "%s%0*d", p.sep, p.width, p.v)
	}
	return b.String()
}

// IsZero reports whether no component is present.
func (t TimeStamp) IsZero() bool { return t.Year < 0 }
