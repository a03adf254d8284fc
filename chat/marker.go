package chat

import "strings"

// markerFilter incrementally removes every occurrence of an exact marker
// from streamed text. Output is forwarded as soon as it can no longer be
// part of a marker: the filter withholds only the longest buffer suffix that
// is a proper prefix of the marker, so a marker split across fragments never
// reaches the caller while ordinary text flows with at most len(marker)-1
// bytes of delay.
type markerFilter struct {
	marker string
	buf    string
	seen   bool
}

func newMarkerFilter(marker string) *markerFilter {
	return &markerFilter{marker: marker}
}

// Write absorbs the next fragment and returns the text that is safe to
// forward.
func (f *markerFilter) Write(fragment string) string {
	f.buf += fragment

	for strings.Contains(f.buf, f.marker) {
		f.seen = true
		f.buf = strings.ReplaceAll(f.buf, f.marker, "")
	}

	hold := f.holdback()
	out := f.buf[:len(f.buf)-hold]
	f.buf = f.buf[len(f.buf)-hold:]
	return out
}

// Flush returns the withheld remainder. A marker prefix that never completed
// is legitimate content and is released here when the stream ends.
func (f *markerFilter) Flush() string {
	out := f.buf
	f.buf = ""
	return out
}

// Seen reports whether at least one complete marker was removed.
func (f *markerFilter) Seen() bool { return f.seen }

// holdback returns the length of the longest proper marker prefix that is a
// suffix of the buffer.
func (f *markerFilter) holdback() int {
	limit := len(f.marker) - 1
	if limit > len(f.buf) {
		limit = len(f.buf)
	}
	for k := limit; k > 0; k-- {
		if strings.HasSuffix(f.buf, f.marker[:k]) {
			return k
		}
	}
	return 0
}
