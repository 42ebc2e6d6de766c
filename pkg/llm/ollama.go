package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/stream"
)

// OllamaProvider talks to a local Ollama server over its NDJSON chat API
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for an Ollama server
func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Model returns the current model name
func (p *OllamaProvider) Model() string {
	return p.model
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func toOllamaMessages(messages []chat.Message) []ollamaMessage {
	result := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError() {
			continue
		}
		result = append(result, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return result
}

func (p *OllamaProvider) newRequest(ctx context.Context, req Request, streaming bool) (*http.Request, error) {
	body := ollamaRequest{
		Model:    p.model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   streaming,
		Tools:    req.Tools,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func ollamaError(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var parsed ollamaResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, parsed.Error)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}

// Chat generates a complete response in one call
func (p *OllamaProvider) Chat(ctx context.Context, req Request) (chat.Message, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return chat.Message{}, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return chat.Message{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return chat.Message{}, ollamaError(resp)
	}
	defer resp.Body.Close()

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return chat.Message{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != "" {
		return chat.Message{}, fmt.Errorf("ollama error: %s", parsed.Error)
	}

	msg := chat.NewAssistantMessage(parsed.Message.Content)
	for _, tc := range parsed.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			Function: chat.ToolFunction{
				Name:      tc.Function.Name,
				Arguments: string(tc.Function.Arguments),
			},
			Status: chat.ToolCallCalling,
		})
	}
	return msg, nil
}

// Stream generates a response as a channel of chunks
func (p *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ollamaError(resp)
	}

	chunks := make(chan Chunk, chunkBuffer)
	go p.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

func (p *OllamaProvider) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- Chunk) {
	defer close(chunks)
	defer body.Close()

	scanner := stream.NewFrameScanner(body, stream.FormatNDJSON, stream.DeliverLineByLine)
	for {
		select {
		case <-ctx.Done():
			chunks <- Chunk{Err: ctx.Err()}
			return
		default:
		}

		payload, err := scanner.Next()
		if err == io.EOF {
			chunks <- Chunk{Done: true}
			return
		}
		if err != nil {
			chunks <- Chunk{Err: fmt.Errorf("stream read failed: %w", err)}
			return
		}

		var parsed ollamaResponse
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			logger.Warn("skipping undecodable stream line: %v", err)
			continue
		}
		if parsed.Error != "" {
			chunks <- Chunk{Err: fmt.Errorf("ollama error: %s", parsed.Error)}
			return
		}

		chunk := Chunk{Content: parsed.Message.Content}
		for _, tc := range parsed.Message.ToolCalls {
			// Ollama delivers each call whole, with a JSON object for
			// arguments. The fragment id keys off the function name.
			chunk.ToolCalls = append(chunk.ToolCalls, chat.ToolCallFragment{
				ID:        tc.Function.Name,
				Name:      tc.Function.Name,
				Arguments: string(tc.Function.Arguments),
			})
		}

		if chunk.Content != "" || len(chunk.ToolCalls) > 0 {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				chunks <- Chunk{Err: ctx.Err()}
				return
			}
		}

		if parsed.Done {
			chunks <- Chunk{Done: true}
			return
		}
	}
}
