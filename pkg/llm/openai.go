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

// OpenAIProvider talks to the OpenAI chat completions API and compatible
// servers (LM Studio, vLLM, llama.cpp server).
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint
func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaiRequest struct {
	Model    string           `json:"model"`
	Messages []oaiMessage     `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		Delta        oaiMessage `json:"delta"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func toOpenAIMessages(messages []chat.Message) []oaiMessage {
	result := make([]oaiMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError() {
			continue
		}

		out := oaiMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.IsTool() {
			out.ToolCallID = msg.ToolCallID
			out.Name = msg.ToolName
		}
		for _, tc := range msg.ToolCalls {
			call := oaiToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Function.Name
			call.Function.Arguments = tc.Function.Arguments
			out.ToolCalls = append(out.ToolCalls, call)
		}
		result = append(result, out)
	}
	return result
}

func (p *OpenAIProvider) newRequest(ctx context.Context, req Request, streaming bool) (*http.Request, error) {
	body := oaiRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   streaming,
		Tools:    req.Tools,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return httpReq, nil
}

// errorFromResponse extracts the API error message from a non-200 response
func errorFromResponse(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var parsed oaiResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, parsed.Error.Message)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}

// Chat generates a complete response in one call
func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (chat.Message, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return chat.Message{}, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return chat.Message{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return chat.Message{}, errorFromResponse(resp)
	}
	defer resp.Body.Close()

	var parsed oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return chat.Message{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return chat.Message{}, fmt.Errorf("response contained no choices")
	}

	choice := parsed.Choices[0].Message
	msg := chat.NewAssistantMessage(choice.Content)
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID: tc.ID,
			Function: chat.ToolFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
			Status: chat.ToolCallCalling,
		})
	}
	return msg, nil
}

// Stream generates a response as a channel of chunks
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	chunks := make(chan Chunk, chunkBuffer)
	go p.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- Chunk) {
	defer close(chunks)
	defer body.Close()

	scanner := stream.NewFrameScanner(body, stream.FormatSSE, stream.DeliverBufferedCompat)
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
		if payload == stream.DoneSentinel {
			chunks <- Chunk{Done: true}
			return
		}

		chunk, ok := parseOpenAIChunk(payload)
		if !ok {
			continue
		}
		select {
		case chunks <- chunk:
		case <-ctx.Done():
			chunks <- Chunk{Err: ctx.Err()}
			return
		}
	}
}

// parseOpenAIChunk decodes one SSE payload into a Chunk. Undecodable payloads
// are skipped rather than failing the stream.
func parseOpenAIChunk(payload string) (Chunk, bool) {
	var parsed oaiResponse
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		logger.Warn("skipping undecodable stream payload: %v", err)
		return Chunk{}, false
	}
	if len(parsed.Choices) == 0 {
		return Chunk{}, false
	}

	delta := parsed.Choices[0].Delta
	chunk := Chunk{Content: delta.Content}
	for _, tc := range delta.ToolCalls {
		chunk.ToolCalls = append(chunk.ToolCalls, chat.ToolCallFragment{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if chunk.Content == "" && len(chunk.ToolCalls) == 0 {
		return Chunk{}, false
	}
	return chunk, true
}
