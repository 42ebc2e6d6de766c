package elements

import "strings"

type state int

const (
	stateNone state = iota
	stateText
	stateCode
	stateTable
	stateFormula
	stateThinking
)

var mediaTags = []struct {
	open     string
	closeTag string
	build    func(string) Element
}{
	{"<image-uuid>", "</image-uuid>", func(s string) Element { return ImageUUID{ID: s} }},
	{"<image-url>", "</image-url>", func(s string) Element { return ImageURL{URL: s} }},
	{"<file-uuid>", "</file-uuid>", func(s string) Element { return FileUUID{ID: s} }},
}

// Parser incrementally converts a growing text buffer into display elements.
// Completed elements are immutable; only the current pending block grows.
// A trailing partial line is held back until a newline arrives or Finalize is
// called, so line-leading markers are never detected on a truncated line.
type Parser struct {
	state     state
	completed []Element

	tail string // partial line awaiting its newline

	textLines []string

	codeLines  []string
	codeLang   string
	codeIndent int

	tableHeader []string
	tableRows   [][]string
	headerSeen  bool

	formulaLines  []string
	thinkingLines []string
}

// NewParser creates an empty parser
func NewParser() *Parser {
	return &Parser{}
}

// AppendChunk feeds more text and returns the elements newly completed by
// this chunk. Chunk boundaries carry no meaning: the same concatenated input
// yields the same elements however it is split.
func (p *Parser) AppendChunk(text string) []Element {
	mark := len(p.completed)

	data := p.tail + text
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		p.processLine(strings.TrimSuffix(data[:idx], "\r"))
		data = data[idx+1:]
	}
	p.tail = data

	return append([]Element(nil), p.completed[mark:]...)
}

// Finalize flushes the held tail and any pending block, then returns the full
// completed element sequence. Call once at stream end.
func (p *Parser) Finalize() []Element {
	if p.tail != "" {
		line := strings.TrimSuffix(p.tail, "\r")
		p.tail = ""
		p.processLine(line)
	}
	p.flushPending()
	return append([]Element(nil), p.completed...)
}

// AllElements returns the completed elements plus a best-effort rendering of
// the still-open pending block, for live display during streaming.
func (p *Parser) AllElements() []Element {
	result := append([]Element(nil), p.completed...)
	if pending, ok := p.pendingElement(); ok {
		result = append(result, pending)
	}
	return result
}

// Reset clears all state for a new session
func (p *Parser) Reset() {
	*p = Parser{}
}

func (p *Parser) processLine(line string) {
	switch p.state {
	case stateCode:
		if strings.TrimSpace(line) == "```" {
			p.completeCode()
			return
		}
		p.codeLines = append(p.codeLines, stripIndent(line, p.codeIndent))
		return

	case stateFormula:
		if strings.TrimSpace(line) == `\]` {
			p.completeFormula()
			return
		}
		p.formulaLines = append(p.formulaLines, line)
		return

	case stateThinking:
		if idx := strings.Index(line, "</think>"); idx >= 0 {
			if idx > 0 {
				p.thinkingLines = append(p.thinkingLines, line[:idx])
			}
			p.completeThinking()
			rest := line[idx+len("</think>"):]
			if strings.TrimSpace(rest) != "" {
				p.processLine(rest)
			}
			return
		}
		p.thinkingLines = append(p.thinkingLines, line)
		return

	case stateTable:
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") {
			p.addTableRow(trimmed)
			return
		}
		p.completeTable()
		// Not a table row anymore; handle below as a fresh line.
	}

	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		p.flushPending()
		p.state = stateCode
		p.codeLang = strings.TrimSpace(trimmed[3:])
		p.codeIndent = leadingIndent(line)
		return
	}

	if strings.HasPrefix(trimmed, "|") {
		p.flushPending()
		p.state = stateTable
		p.addTableRow(trimmed)
		return
	}

	if trimmed == `\[` {
		p.flushPending()
		p.state = stateFormula
		return
	}
	if strings.HasPrefix(trimmed, `\[`) && strings.HasSuffix(trimmed, `\]`) && len(trimmed) > 4 {
		p.flushPending()
		p.completed = append(p.completed, Formula{Content: strings.TrimSpace(trimmed[2 : len(trimmed)-2])})
		return
	}

	thinkIdx := strings.Index(line, "<think>")
	mediaStart, mediaEnd, mediaElem := matchMedia(line)

	if thinkIdx >= 0 && (mediaStart < 0 || thinkIdx < mediaStart) {
		if strings.TrimSpace(line[:thinkIdx]) != "" {
			p.appendText(line[:thinkIdx])
		}
		p.flushPending()
		p.state = stateThinking
		if rest := line[thinkIdx+len("<think>"):]; rest != "" {
			p.processLine(rest)
		}
		return
	}

	if mediaStart >= 0 {
		if strings.TrimSpace(line[:mediaStart]) != "" {
			p.appendText(line[:mediaStart])
		}
		p.flushPending()
		p.completed = append(p.completed, mediaElem)
		if rest := line[mediaEnd:]; strings.TrimSpace(rest) != "" {
			p.processLine(rest)
		}
		return
	}

	if p.state == stateNone && trimmed == "" {
		return
	}
	p.appendText(line)
}

// matchMedia returns the earliest inline media reference whose closing tag is
// present on the line. A lone opening tag is not matched; it stays plain text
// until (and unless) its closing tag arrives on the same line.
func matchMedia(line string) (start, end int, elem Element) {
	start = -1
	for _, tag := range mediaTags {
		open := strings.Index(line, tag.open)
		if open < 0 {
			continue
		}
		body := open + len(tag.open)
		closing := strings.Index(line[body:], tag.closeTag)
		if closing < 0 {
			continue
		}
		if start < 0 || open < start {
			start = open
			end = body + closing + len(tag.closeTag)
			elem = tag.build(strings.TrimSpace(line[body : body+closing]))
		}
	}
	return start, end, elem
}

func (p *Parser) appendText(line string) {
	p.textLines = append(p.textLines, line)
	p.state = stateText
}

// flushPending completes whatever block is open and returns to the idle state
func (p *Parser) flushPending() {
	switch p.state {
	case stateText:
		p.completeText()
	case stateCode:
		p.completeCode()
	case stateTable:
		p.completeTable()
	case stateFormula:
		p.completeFormula()
	case stateThinking:
		p.completeThinking()
	}
	p.state = stateNone
}

func (p *Parser) completeText() {
	content := strings.Join(p.textLines, "\n")
	p.textLines = nil
	p.state = stateNone
	if strings.TrimSpace(content) == "" {
		return
	}
	p.completed = append(p.completed, Text{Content: strings.TrimSpace(content)})
}

func (p *Parser) completeCode() {
	p.completed = append(p.completed, Code{
		Content:  strings.Join(p.codeLines, "\n"),
		Language: p.codeLang,
		Indent:   p.codeIndent,
	})
	p.codeLines = nil
	p.codeLang = ""
	p.codeIndent = 0
	p.state = stateNone
}

func (p *Parser) completeTable() {
	if p.tableHeader != nil {
		p.completed = append(p.completed, Table{
			Header: p.tableHeader,
			Rows:   p.tableRows,
		})
	}
	p.tableHeader = nil
	p.tableRows = nil
	p.headerSeen = false
	p.state = stateNone
}

func (p *Parser) completeFormula() {
	content := strings.TrimSpace(strings.Join(p.formulaLines, "\n"))
	p.formulaLines = nil
	p.state = stateNone
	p.completed = append(p.completed, Formula{Content: content})
}

func (p *Parser) completeThinking() {
	content := strings.TrimSpace(strings.Join(p.thinkingLines, "\n"))
	p.thinkingLines = nil
	p.state = stateNone
	if content == "" {
		return
	}
	p.completed = append(p.completed, Thinking{Content: content})
}

func (p *Parser) addTableRow(trimmed string) {
	cells := parseTableRow(trimmed)
	if isDelimiterRow(cells) {
		p.headerSeen = true
		return
	}
	if p.tableHeader == nil {
		p.tableHeader = cells
		return
	}
	p.tableRows = append(p.tableRows, cells)
}

// pendingElement renders the still-open block, if any
func (p *Parser) pendingElement() (Element, bool) {
	switch p.state {
	case stateText:
		content := strings.Join(p.textLines, "\n")
		if p.tail != "" {
			content = joinTail(content, p.tail)
		}
		if strings.TrimSpace(content) == "" {
			return nil, false
		}
		return Text{Content: strings.TrimSpace(content)}, true

	case stateCode:
		content := strings.Join(p.codeLines, "\n")
		if p.tail != "" {
			content = joinTail(content, stripIndent(p.tail, p.codeIndent))
		}
		return Code{Content: content, Language: p.codeLang, Indent: p.codeIndent}, true

	case stateTable:
		if p.tableHeader == nil {
			return nil, false
		}
		return Table{Header: p.tableHeader, Rows: p.tableRows}, true

	case stateFormula:
		content := strings.Join(p.formulaLines, "\n")
		if p.tail != "" {
			content = joinTail(content, p.tail)
		}
		return Formula{Content: strings.TrimSpace(content)}, true

	case stateThinking:
		content := strings.Join(p.thinkingLines, "\n")
		if p.tail != "" {
			content = joinTail(content, p.tail)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return nil, false
		}
		return Thinking{Content: content}, true

	default:
		if strings.TrimSpace(p.tail) != "" {
			return Text{Content: strings.TrimSpace(p.tail)}, true
		}
		return nil, false
	}
}

func joinTail(content, tail string) string {
	if content == "" {
		return tail
	}
	return content + "\n" + tail
}

func parseTableRow(trimmed string) []string {
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells
}

// isDelimiterRow reports whether every cell is made only of '-' and ':', as
// in the alignment row under a markdown table header.
func isDelimiterRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if cell == "" {
			return false
		}
		for _, r := range cell {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

func leadingIndent(line string) int {
	count := 0
	for _, r := range line {
		if r == ' ' {
			count++
		} else if r == '\t' {
			count += 4
		} else {
			break
		}
	}
	return count
}

func stripIndent(line string, indent int) string {
	for i := 0; i < indent && line != ""; i++ {
		if line[0] == ' ' {
			line = line[1:]
		} else {
			break
		}
	}
	return line
}
