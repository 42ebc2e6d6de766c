package display

import (
	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/elements"
)

// Sink receives the observable output of a streaming session. The pipeline is
// agnostic to how a sink renders; implementations range from a plain console
// writer to test recorders.
type Sink interface {
	// OnChunk delivers an aggregated text chunk for live rendering
	OnChunk(text string)

	// OnElements delivers newly completed structured elements
	OnElements(els []elements.Element)

	// OnToolStatus reports a tool call status transition
	OnToolStatus(call chat.ToolCall)

	// OnComplete signals the end of a successful session with the final body
	OnComplete(finalContent string)

	// OnFailure signals a terminal error
	OnFailure(err error)
}

// NopSink discards everything. Useful for background sessions whose output is
// only persisted, never rendered.
type NopSink struct{}

func (NopSink) OnChunk(string)                 {}
func (NopSink) OnElements([]elements.Element)  {}
func (NopSink) OnToolStatus(chat.ToolCall)     {}
func (NopSink) OnComplete(string)              {}
func (NopSink) OnFailure(error)                {}

var _ Sink = NopSink{}
