package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/stream"
)

// LangChainProvider wraps a langchaingo model, giving access to any backend
// the library supports behind the common Provider interface.
type LangChainProvider struct {
	llm     llms.Model
	backend string
	model   string
}

// NewLangChainProvider creates a provider over a langchaingo backend
// ("ollama" or "openai").
func NewLangChainProvider(backend, baseURL, model string, timeout time.Duration) (*LangChainProvider, error) {
	var (
		llm llms.Model
		err error
	)

	switch backend {
	case "", "ollama":
		backend = "ollama"
		var opts []ollama.Option
		if baseURL != "" {
			opts = append(opts, ollama.WithServerURL(baseURL))
		}
		if model != "" {
			opts = append(opts, ollama.WithModel(model))
		}
		llm, err = ollama.New(opts...)

	case "openai":
		var opts []openai.Option
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		llm, err = openai.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported langchain backend: %s", backend)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create langchain %s client: %w", backend, err)
	}

	return &LangChainProvider{
		llm:     llm,
		backend: backend,
		model:   model,
	}, nil
}

// Name returns the provider name
func (p *LangChainProvider) Name() string {
	return "langchain"
}

// Model returns the current model name
func (p *LangChainProvider) Model() string {
	return p.model
}

func toLangChainMessages(messages []chat.Message) []llms.MessageContent {
	result := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		messageType := llms.ChatMessageTypeHuman
		switch msg.Role {
		case chat.RoleSystem:
			messageType = llms.ChatMessageTypeSystem
		case chat.RoleAssistant:
			messageType = llms.ChatMessageTypeAI
		case chat.RoleUser:
			messageType = llms.ChatMessageTypeHuman
		case chat.RoleTool:
			messageType = llms.ChatMessageTypeTool
		default:
			continue
		}
		result = append(result, llms.TextParts(messageType, msg.Content))
	}
	return result
}

func toLangChainTools(defs []map[string]any) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		fn, ok := def["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  fn["parameters"],
			},
		})
	}
	return tools
}

func (p *LangChainProvider) callOptions(req Request) []llms.CallOption {
	var opts []llms.CallOption
	if tools := toLangChainTools(req.Tools); len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

// Chat generates a complete response in one call
func (p *LangChainProvider) Chat(ctx context.Context, req Request) (chat.Message, error) {
	resp, err := p.llm.GenerateContent(ctx, toLangChainMessages(req.Messages), p.callOptions(req)...)
	if err != nil {
		return chat.Message{}, fmt.Errorf("langchain request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return chat.Message{}, fmt.Errorf("response contained no choices")
	}

	choice := resp.Choices[0]
	msg := chat.NewAssistantMessage(choice.Content)
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID: tc.ID,
			Function: chat.ToolFunction{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			},
			Status: chat.ToolCallCalling,
		})
	}
	return msg, nil
}

// Stream generates a response as a channel of chunks
func (p *LangChainProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	chunks := make(chan Chunk, chunkBuffer)

	handler := stream.HandlerFunc{
		ChunkFunc: func(piece []byte) error {
			select {
			case chunks <- Chunk{Content: string(piece)}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	go func() {
		defer close(chunks)

		opts := append(p.callOptions(req), llms.WithStreamingFunc(stream.ToStreamingFunc(handler)))
		resp, err := p.llm.GenerateContent(ctx, toLangChainMessages(req.Messages), opts...)
		if err != nil {
			chunks <- Chunk{Err: fmt.Errorf("langchain stream failed: %w", err)}
			return
		}

		// Tool calls arrive only on the final response, not as stream pieces
		if len(resp.Choices) > 0 {
			var fragments []chat.ToolCallFragment
			for _, tc := range resp.Choices[0].ToolCalls {
				fragments = append(fragments, chat.ToolCallFragment{
					ID:        tc.ID,
					Name:      tc.FunctionCall.Name,
					Arguments: tc.FunctionCall.Arguments,
				})
			}
			if len(fragments) > 0 {
				chunks <- Chunk{ToolCalls: fragments}
			}
		}
		chunks <- Chunk{Done: true}
	}()

	return chunks, nil
}
