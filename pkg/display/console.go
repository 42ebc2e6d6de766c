package display

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/elements"
)

// Console renders streamed output to a terminal. Plain chunks are written as
// they arrive; structured elements are rendered block-by-block once complete.
type Console struct {
	out       io.Writer
	errOut    io.Writer
	formatter chroma.Formatter

	thinkingStyle lipgloss.Style
	toolStyle     lipgloss.Style
	tableStyle    lipgloss.Style
	formulaStyle  lipgloss.Style
	mediaStyle    lipgloss.Style

	showThinking bool
}

// NewConsole creates a console sink writing to stdout/stderr
func NewConsole(showThinking bool) *Console {
	return NewConsoleTo(os.Stdout, os.Stderr, showThinking)
}

// NewConsoleTo creates a console sink with explicit writers, for tests
func NewConsoleTo(out, errOut io.Writer, showThinking bool) *Console {
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	return &Console{
		out:       out,
		errOut:    errOut,
		formatter: formatter,

		thinkingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true),

		toolStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB000")),

		tableStyle: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1),

		formulaStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98")),

		mediaStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6495ED")).
			Underline(true),

		showThinking: showThinking,
	}
}

// OnChunk writes an aggregated chunk for live rendering
func (c *Console) OnChunk(text string) {
	fmt.Fprint(c.out, text)
}

// OnElements renders completed blocks
func (c *Console) OnElements(els []elements.Element) {
	for _, el := range els {
		switch e := el.(type) {
		case elements.Code:
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, c.highlight(e.Content, e.Language))
		case elements.Table:
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, c.tableStyle.Render(renderTable(e)))
		case elements.Formula:
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, c.formulaStyle.Render(e.Content))
		case elements.Thinking:
			if c.showThinking {
				fmt.Fprintln(c.out)
				fmt.Fprintln(c.out, c.thinkingStyle.Render(e.Content))
			}
		case elements.ImageUUID:
			fmt.Fprintln(c.out, c.mediaStyle.Render("[image "+e.ID+"]"))
		case elements.ImageURL:
			fmt.Fprintln(c.out, c.mediaStyle.Render(e.URL))
		case elements.FileUUID:
			fmt.Fprintln(c.out, c.mediaStyle.Render("[file "+e.ID+"]"))
		}
	}
}

// OnToolStatus prints a tool call status transition
func (c *Console) OnToolStatus(call chat.ToolCall) {
	fmt.Fprintln(c.out, c.toolStyle.Render(
		fmt.Sprintf("[tool %s: %s]", call.Function.Name, call.Status)))
}

// OnComplete terminates the output line
func (c *Console) OnComplete(finalContent string) {
	if len(finalContent) > 0 && !strings.HasSuffix(finalContent, "\n") {
		fmt.Fprintln(c.out)
	}
}

// OnFailure prints the error to the error writer
func (c *Console) OnFailure(err error) {
	fmt.Fprintf(c.errOut, "Error: %v\n", err)
}

// highlight renders source code with chroma, falling back to the raw text
func (c *Console) highlight(content, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return content
	}

	var buf bytes.Buffer
	if err := c.formatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		return content
	}
	return buf.String()
}

func renderTable(t elements.Table) string {
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			if i < len(widths) && widths[i] > len(cell) {
				sb.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(t.Header)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Sink = (*Console)(nil)
