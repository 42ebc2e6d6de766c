package controllers

import (
	"context"
	"strings"
	"sync"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/llm"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/stream"
)

// MaxAgents caps how many providers a fan-out round may target. Selections
// beyond the cap are dropped silently.
const MaxAgents = 3

// AgentResponse is one agent's independent outcome in a fan-out round
type AgentResponse struct {
	Provider string
	Model    string
	Message  chat.Message
	State    stream.State
	Err      error
}

// Coordinator runs the same user message against several providers
// concurrently. Each agent gets its own pipeline; one agent failing or being
// cancelled never affects the others.
type Coordinator struct {
	registry *llm.Registry
	cfg      *config.Config
}

// NewCoordinator creates a fan-out coordinator over the provider registry
func NewCoordinator(registry *llm.Registry, cfg *config.Config) *Coordinator {
	return &Coordinator{
		registry: registry,
		cfg:      cfg,
	}
}

// Run sends the conversation to each named provider and joins once every
// agent reaches a terminal state. Results preserve input order. Responses are
// buffered per agent; merging them into history is the caller's decision.
func (c *Coordinator) Run(ctx context.Context, providers []string, conv chat.Conversation) []AgentResponse {
	if max := c.maxAgents(); len(providers) > max {
		logger.Warn("fan-out capped at %d agents, dropping %d extra selections", max, len(providers)-max)
		providers = providers[:max]
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]AgentResponse, len(providers))
	var wg sync.WaitGroup
	for i, name := range providers {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = c.runAgent(ctx, name, conv)
		}(i, name)
	}
	wg.Wait()

	return results
}

func (c *Coordinator) maxAgents() int {
	if c.cfg != nil && c.cfg.Agents.Max > 0 && c.cfg.Agents.Max < MaxAgents {
		return c.cfg.Agents.Max
	}
	return MaxAgents
}

// runAgent drives one independent streaming pipeline to a terminal state
func (c *Coordinator) runAgent(ctx context.Context, name string, conv chat.Conversation) AgentResponse {
	response := AgentResponse{Provider: name}

	provider, err := c.registry.Get(name)
	if err != nil {
		response.State = stream.StateError
		response.Err = err
		return response
	}
	response.Model = provider.Model()

	window := 0
	if c.cfg != nil {
		window = c.cfg.History.ContextWindow
	}

	chunks, err := provider.Stream(ctx, llm.Request{
		Messages: chat.LastN(conv, window),
	})
	if err != nil {
		response.State = stream.StateError
		response.Err = err
		return response
	}

	var body strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			response.Err = chunk.Err
			if ctx.Err() != nil {
				response.State = stream.StateCancelled
			} else {
				response.State = stream.StateError
			}
			// Partial content is preserved even on failure
			response.Message = agentMessage(body.String(), name, response.Model)
			return response
		}
		body.WriteString(chunk.Content)
		if chunk.Done {
			break
		}
	}

	response.State = stream.StateComplete
	response.Message = agentMessage(body.String(), name, response.Model)
	return response
}

func agentMessage(body, provider, model string) chat.Message {
	msg := chat.NewAssistantMessage(body)
	msg.Provider = provider
	msg.Model = model
	return msg
}

// Merge appends completed agent responses to the conversation, one assistant
// message per agent in input order. Failed agents contribute an error entry
// so the transcript records what happened.
func Merge(conv chat.Conversation, responses []AgentResponse) chat.Conversation {
	for _, resp := range responses {
		if resp.Err != nil && resp.Message.Content == "" {
			conv = chat.AddMessage(conv, chat.NewErrorMessage(resp.Provider+": "+resp.Err.Error()))
			continue
		}
		conv = chat.AddMessage(conv, resp.Message)
	}
	return conv
}
