package stream

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/quillchat/quill/pkg/logger"
)

// Format selects the wire framing of a provider response stream
type Format int

const (
	// FormatSSE parses Server-Sent Events: `data:` lines, `:` comments,
	// blank-line event termination.
	FormatSSE Format = iota
	// FormatNDJSON parses one JSON object per line, no field prefix.
	FormatNDJSON
)

// Delivery selects when buffered SSE data lines are emitted as payloads
type Delivery int

const (
	// DeliverLineByLine emits every non-empty data line immediately.
	DeliverLineByLine Delivery = iota
	// DeliverBufferedEvents accumulates data lines until the blank-line
	// event terminator, then emits the joined payload (strict SSE).
	DeliverBufferedEvents
	// DeliverBufferedCompat accumulates like DeliverBufferedEvents but also
	// flushes as soon as the joined payload is structurally complete JSON or
	// the [DONE] sentinel. Some providers send multi-line JSON events
	// without ever sending the blank-line terminator.
	DeliverBufferedCompat
)

// DoneSentinel is the literal end-of-stream marker used by SSE providers
const DoneSentinel = "[DONE]"

// FrameScanner decodes a raw byte stream into discrete event payloads.
// Line splitting is byte-exact: a final line without a trailing newline is
// still delivered, since several providers omit the closing newline after
// their last chunk.
type FrameScanner struct {
	reader   *bufio.Reader
	format   Format
	delivery Delivery

	pending []string // data lines of the event being accumulated
	queue   []string // decoded payloads not yet handed to the caller
	eof     bool
}

// NewFrameScanner creates a scanner over r with the given framing
func NewFrameScanner(r io.Reader, format Format, delivery Delivery) *FrameScanner {
	return &FrameScanner{
		reader:   bufio.NewReader(r),
		format:   format,
		delivery: delivery,
	}
}

// Next returns the next decoded payload string. It returns io.EOF once the
// stream is exhausted and any residual buffered payload has been flushed.
func (s *FrameScanner) Next() (string, error) {
	for {
		if len(s.queue) > 0 {
			payload := s.queue[0]
			s.queue = s.queue[1:]
			return payload, nil
		}
		if s.eof {
			return "", io.EOF
		}

		line, err := s.readLine()
		if err != nil {
			if err != io.EOF {
				return "", err
			}
			s.eof = true
			if line == "" {
				s.flushPending()
				continue
			}
		}
		s.processLine(line)
		if s.eof {
			s.flushPending()
		}
	}
}

// readLine reads one line, stripping the terminator. On EOF the unterminated
// tail (if any) is returned together with io.EOF.
func (s *FrameScanner) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	trimmed := strings.TrimRight(line, "\r\n")
	return trimmed, err
}

func (s *FrameScanner) processLine(line string) {
	if !utf8.ValidString(line) {
		logger.Warn("dropping line with malformed UTF-8 (%d bytes)", len(line))
		return
	}

	if s.format == FormatNDJSON {
		if line != "" {
			s.queue = append(s.queue, line)
		}
		return
	}

	// SSE framing
	if line == "" {
		// Blank line terminates the current event
		s.flushPending()
		return
	}
	if strings.HasPrefix(line, ":") {
		// Comment line
		return
	}

	field, value := splitField(line)
	if field != "data" {
		// event:, id:, retry: and unknown fields are not significant
		return
	}

	switch s.delivery {
	case DeliverLineByLine:
		if value != "" {
			s.queue = append(s.queue, value)
		}
	case DeliverBufferedEvents:
		s.pending = append(s.pending, value)
	case DeliverBufferedCompat:
		s.pending = append(s.pending, value)
		joined := strings.Join(s.pending, "\n")
		if joined == DoneSentinel || JSONComplete(joined) {
			s.pending = nil
			s.queue = append(s.queue, joined)
		}
	}
}

// flushPending emits the accumulated event payload, if any
func (s *FrameScanner) flushPending() {
	if len(s.pending) == 0 {
		return
	}
	joined := strings.Join(s.pending, "\n")
	s.pending = nil
	if joined != "" {
		s.queue = append(s.queue, joined)
	}
}

// splitField splits an SSE "field: value" line. A single leading space after
// the colon is part of the separator, further spaces belong to the value.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// JSONComplete is a cheap structural completeness check: matching outer
// brackets and balanced nesting, no real parse. It deliberately ignores
// string literals, so a payload whose string values contain unbalanced
// brackets can misfire; full parsing on every line would be too expensive
// for high-frequency streams.
func JSONComplete(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}

	var closing byte
	switch s[0] {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return false
	}
	if s[len(s)-1] != closing {
		return false
	}

	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
		if depth == 0 && i < len(s)-1 {
			// Balanced before the end: trailing garbage or concatenated docs
			return false
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}
