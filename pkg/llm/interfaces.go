package llm

import (
	"context"

	"github.com/quillchat/quill/pkg/chat"
)

// Chunk is a single streamed piece of a model response. Content and ToolCalls
// may both be empty on keepalive chunks. Done marks the terminal chunk; Err is
// set instead of Done when the stream failed.
type Chunk struct {
	Content   string
	ToolCalls []chat.ToolCallFragment
	Done      bool
	Err       error
}

// Request is a provider-agnostic chat completion request. Tools carries
// function-calling definitions; leave it empty to disable tool use for the
// request.
type Request struct {
	Messages []chat.Message
	Tools    []map[string]any
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Model returns the current model name
	Model() string

	// Chat generates a complete response in one call
	Chat(ctx context.Context, req Request) (chat.Message, error)

	// Stream generates a response as a channel of chunks. The channel is
	// closed after the terminal chunk. Callers must drain it.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// chunkBuffer is the channel capacity for streamed chunks
const chunkBuffer = 100
