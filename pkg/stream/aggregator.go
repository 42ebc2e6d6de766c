package stream

import (
	"strings"
	"time"
)

// Media markers must never be split across a UI update. An opening marker
// force-flushes the pending buffer and switches the aggregator into deferred
// mode until the matching closing tag arrives.
var mediaMarkers = []struct {
	open     string
	closeTag string
}{
	{"<image-uuid>", "</image-uuid>"},
	{"<image-url>", "</image-url>"},
	{"<file-uuid>", "</file-uuid>"},
}

// Aggregator decouples network chunk arrival rate from UI update rate. It
// accumulates text fragments and emits consolidated chunks on an interval,
// on demand, or around media markers.
type Aggregator struct {
	pending   []string
	size      int
	lastFlush time.Time
	interval  time.Duration

	full strings.Builder // every fragment ever appended, in order

	deferring  bool
	deferStart int    // length of full when deferred mode began
	deferClose string // closing tag that ends deferred mode
}

// NewAggregator creates an aggregator that considers a flush due once
// interval has elapsed since the previous one
func NewAggregator(interval time.Duration) *Aggregator {
	return &Aggregator{
		interval:  interval,
		lastFlush: time.Now(),
	}
}

// Append adds a fragment. If the fragment opens a media marker the pending
// buffer is force-flushed first and the returned string (ok=true) must be
// delivered before anything else; the marker content itself is withheld
// until its closing tag arrives.
func (a *Aggregator) Append(fragment string) (flush string, ok bool) {
	if fragment == "" {
		return "", false
	}

	if a.deferring {
		a.full.WriteString(fragment)
		if strings.Contains(a.full.String()[a.deferStart:], a.deferClose) {
			a.deferring = false
		}
		return "", false
	}

	if open, closeTag := openingMarker(fragment); open != "" {
		flush, ok = a.Flush(true)
		a.deferStart = a.full.Len()
		a.deferClose = closeTag
		a.deferring = true
		a.full.WriteString(fragment)
		if strings.Contains(fragment[strings.Index(fragment, open):], closeTag) {
			a.deferring = false
		}
		return flush, ok
	}

	a.pending = append(a.pending, fragment)
	a.size += len(fragment)
	a.full.WriteString(fragment)
	return "", false
}

// Due reports whether the flush interval has elapsed
func (a *Aggregator) Due(now time.Time) bool {
	return now.Sub(a.lastFlush) >= a.interval
}

// Flush joins and returns the pending fragments. Without force it is a no-op
// until the interval is due. ok is false when there was nothing to emit.
func (a *Aggregator) Flush(force bool) (string, bool) {
	if !force && !a.Due(time.Now()) {
		return "", false
	}
	a.lastFlush = time.Now()
	if len(a.pending) == 0 {
		return "", false
	}

	joined := strings.Join(a.pending, "")
	a.pending = a.pending[:0]
	a.size = 0
	return joined, true
}

// PendingSize returns the byte count of unflushed fragments
func (a *Aggregator) PendingSize() int {
	return a.size
}

// Deferring reports whether the aggregator is withholding content until a
// media marker closes
func (a *Aggregator) Deferring() bool {
	return a.deferring
}

// FinalBody returns the text to commit as the message body. While a media
// marker is still open the incomplete trailing marker is dropped, so a
// half-formed tag is never persisted or rendered.
func (a *Aggregator) FinalBody() string {
	if a.deferring {
		return a.full.String()[:a.deferStart]
	}
	return a.full.String()
}

// Reset clears all buffers for a new session
func (a *Aggregator) Reset() {
	a.pending = a.pending[:0]
	a.size = 0
	a.full.Reset()
	a.deferring = false
	a.deferStart = 0
	a.deferClose = ""
	a.lastFlush = time.Now()
}

// openingMarker returns the first media marker opening tag contained in the
// fragment, with its closing tag
func openingMarker(fragment string) (open, closeTag string) {
	first := -1
	for _, m := range mediaMarkers {
		if idx := strings.Index(fragment, m.open); idx >= 0 {
			if first < 0 || idx < first {
				first = idx
				open, closeTag = m.open, m.closeTag
			}
		}
	}
	return open, closeTag
}
