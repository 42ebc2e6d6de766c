package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/quillchat/quill/pkg/chat"
)

// GeminiProvider talks to the Gemini API through the official SDK
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider backed by the Gemini API
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for gemini")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model name
func (p *GeminiProvider) Model() string {
	return p.model
}

// convRequest maps the provider-agnostic request onto genai contents and
// config. System messages become the system instruction, tool results become
// function responses.
func (p *GeminiProvider) convRequest(req Request) (*genai.GenerateContentConfig, []*genai.Content) {
	cfg := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch {
		case msg.IsSystem():
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			}

		case msg.IsTool():
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = map[string]any{"output": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(msg.ToolName, result)},
			})

		case msg.IsAssistant():
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args, err := tc.ParseArguments()
				if err != nil {
					args = map[string]any{}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Function.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		case msg.IsUser():
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			})
		}
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, def := range req.Tools {
			fn, ok := def["function"].(map[string]any)
			if !ok {
				continue
			}
			name, _ := fn["name"].(string)
			description, _ := fn["description"].(string)
			params, _ := fn["parameters"].(map[string]any)
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        name,
				Description: description,
				Parameters:  geminiSchema(params),
			})
		}
		if len(tool.FunctionDeclarations) > 0 {
			cfg.Tools = []*genai.Tool{tool}
		}
	}

	return cfg, contents
}

// geminiSchema converts a JSON Schema map into the SDK's schema type
func geminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	gs := &genai.Schema{}
	if desc, ok := schema["description"].(string); ok {
		gs.Description = desc
	}

	switch t, _ := schema["type"].(string); t {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}

	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(props))
		for key, value := range props {
			if sub, ok := value.(map[string]any); ok {
				gs.Properties[key] = geminiSchema(sub)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		gs.Required = required
	} else if raw, ok := schema["required"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				gs.Required = append(gs.Required, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		gs.Items = geminiSchema(items)
	}
	return gs
}

// Chat generates a complete response in one call
func (p *GeminiProvider) Chat(ctx context.Context, req Request) (chat.Message, error) {
	cfg, contents := p.convRequest(req)
	if len(contents) == 0 {
		return chat.Message{}, fmt.Errorf("no content to send")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return chat.Message{}, fmt.Errorf("response contained no candidates")
	}

	var text strings.Builder
	msg := chat.Message{Role: chat.RoleAssistant}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.Text != "":
			text.WriteString(part.Text)
		case part.FunctionCall != nil:
			args, _ := json.Marshal(part.FunctionCall.Args)
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
				ID: part.FunctionCall.Name,
				Function: chat.ToolFunction{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
				Status: chat.ToolCallCalling,
			})
		}
	}
	msg.Content = text.String()
	return msg, nil
}

// Stream generates a response as a channel of chunks
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	cfg, contents := p.convRequest(req)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no content to send")
	}

	chunks := make(chan Chunk, chunkBuffer)
	go func() {
		defer close(chunks)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				chunks <- Chunk{Err: fmt.Errorf("gemini stream failed: %w", err)}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			chunk := Chunk{}
			var text strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				switch {
				case part.Text != "":
					text.WriteString(part.Text)
				case part.FunctionCall != nil:
					args, _ := json.Marshal(part.FunctionCall.Args)
					chunk.ToolCalls = append(chunk.ToolCalls, chat.ToolCallFragment{
						ID:        part.FunctionCall.Name,
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					})
				}
			}
			chunk.Content = text.String()

			if chunk.Content != "" || len(chunk.ToolCalls) > 0 {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					chunks <- Chunk{Err: ctx.Err()}
					return
				}
			}
		}
		chunks <- Chunk{Done: true}
	}()
	return chunks, nil
}
