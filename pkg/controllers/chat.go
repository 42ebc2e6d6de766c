package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/display"
	"github.com/quillchat/quill/pkg/elements"
	"github.com/quillchat/quill/pkg/history"
	"github.com/quillchat/quill/pkg/llm"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/stream"
	"github.com/quillchat/quill/pkg/tools"
)

// ChatController owns the streaming pipeline for conversations: it drives the
// provider stream, aggregates chunks, parses elements, executes tool calls,
// and persists results. At most one generation runs per conversation; sending
// again cancels and awaits the previous task first.
type ChatController struct {
	provider llm.Provider
	tools    *tools.Registry
	store    *history.Store
	saver    *history.Saver
	sink     display.Sink
	tracker  *stream.Tracker
	cfg      *config.Config

	mu       sync.Mutex
	sessions map[string]*session
}

// session tracks one in-flight generation. commit guards the final
// persistence write so the body is committed exactly once even when
// cancellation races completion.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
	commit sync.Once
}

// NewChatController wires the pipeline's collaborators together
func NewChatController(provider llm.Provider, registry *tools.Registry, store *history.Store, saver *history.Saver, sink display.Sink, cfg *config.Config) *ChatController {
	if sink == nil {
		sink = display.NopSink{}
	}
	return &ChatController{
		provider: provider,
		tools:    registry,
		store:    store,
		saver:    saver,
		sink:     sink,
		tracker:  stream.NewTracker(),
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// Send appends the user message and generates the assistant response
func (c *ChatController) Send(ctx context.Context, conv chat.Conversation, input string) (chat.Conversation, error) {
	msg := chat.NewUserMessage(input)
	if msg.IsEmpty() {
		return conv, fmt.Errorf("message cannot be empty")
	}
	conv = chat.AddMessage(conv, msg)
	return c.generate(ctx, conv)
}

// Retry re-sends the last user message without duplicating it: messages after
// it (failed or partial assistant output) are dropped first.
func (c *ChatController) Retry(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	last := -1
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsUser() {
			last = i
			break
		}
	}
	if last < 0 {
		return conv, fmt.Errorf("no user message to retry")
	}

	conv.Messages = conv.Messages[:last+1]
	return c.generate(ctx, conv)
}

// Cancel stops the active generation for the conversation, if any. The
// partial body is committed by the generation task itself.
func (c *ChatController) Cancel(convID string) {
	c.mu.Lock()
	sess := c.sessions[convID]
	c.mu.Unlock()

	if sess != nil {
		sess.cancel()
	}
}

// begin registers a session for the conversation, cancelling and awaiting any
// existing one first.
func (c *ChatController) begin(convID string, cancel context.CancelFunc) *session {
	c.mu.Lock()
	prior := c.sessions[convID]
	c.mu.Unlock()

	if prior != nil {
		prior.cancel()
		<-prior.done
	}

	sess := &session{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.sessions[convID] = sess
	c.mu.Unlock()
	return sess
}

// end clears the session reference before signalling done, so a successor
// never observes a finished session as active.
func (c *ChatController) end(convID string, sess *session) {
	c.mu.Lock()
	if c.sessions[convID] == sess {
		delete(c.sessions, convID)
	}
	c.mu.Unlock()
	close(sess.done)
}

func (c *ChatController) generate(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Provider == "" {
		conv.Provider = c.provider.Name()
	}
	if conv.Model == "" {
		conv.Model = c.provider.Model()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := c.begin(conv.ID, cancel)
	defer c.end(conv.ID, sess)

	if err := c.tracker.Begin(conv.ID); err != nil {
		return conv, err
	}

	// commitOnce persists the final or partial conversation exactly once
	commitOnce := func(snapshot chat.Conversation) chat.Conversation {
		committed := snapshot
		sess.commit.Do(func() {
			committed = c.saver.Commit(snapshot)
		})
		return committed
	}

	agg := stream.NewAggregator(c.cfg.Stream.FlushInterval)
	parser := elements.NewParser()

	var toolDefs []map[string]any
	if c.tools != nil && c.tools.HasTools() {
		toolDefs = c.tools.Definitions()
	}

	for round := 0; ; round++ {
		body, calls, err := c.streamRound(ctx, conv, agg, parser, toolDefs)

		if err != nil {
			if body != "" {
				conv = chat.AddMessage(conv, assistantMessage(body, nil, conv))
			}
			conv = commitOnce(conv)

			if errors.Is(err, context.Canceled) {
				c.tracker.Set(conv.ID, stream.StateCancelled)
				logger.Info("generation cancelled for conversation %s, %d bytes preserved", conv.ID, len(body))
				return conv, err
			}
			c.tracker.Set(conv.ID, stream.StateError)
			c.sink.OnFailure(err)
			return conv, &stream.StreamError{Partial: body, Err: err}
		}

		if len(calls) == 0 || round > 0 {
			conv = chat.AddMessage(conv, assistantMessage(body, calls, conv))
			conv = commitOnce(conv)
			c.tracker.Set(conv.ID, stream.StateComplete)
			c.sink.OnComplete(body)
			c.nameConversation(conv)
			return conv, nil
		}

		// Tool round: record the request, execute each call in arrival
		// order, append results, then resend without tools so the model
		// produces a final answer instead of looping.
		conv = chat.AddMessage(conv, assistantMessage(body, calls, conv))

		executed, err := c.executeCalls(ctx, calls)
		for _, call := range executed {
			conv = chat.AddMessage(conv, chat.NewToolResultMessage(call.ID, call.Function.Name, call.Result))
		}
		if err != nil {
			conv = commitOnce(conv)
			c.tracker.Set(conv.ID, stream.StateCancelled)
			return conv, err
		}
		conv = c.saver.Queue(conv)

		toolDefs = nil
		agg.Reset()
		parser.Reset()
	}
}

// streamRound consumes one provider stream into the aggregator, parser, and
// tool-call collector. It returns the accumulated body and collected calls;
// on error or cancellation the body holds whatever had accumulated.
func (c *ChatController) streamRound(ctx context.Context, conv chat.Conversation, agg *stream.Aggregator, parser *elements.Parser, toolDefs []map[string]any) (string, []chat.ToolCall, error) {
	req := llm.Request{
		Messages: chat.LastN(conv, c.cfg.History.ContextWindow),
		Tools:    toolDefs,
	}

	chunks, err := c.provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	collector := chat.NewToolCallCollector()
	interval := c.cfg.Stream.FlushInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flushForce := func() {
		if out, ok := agg.Flush(true); ok {
			c.sink.OnChunk(out)
		}
	}

	// emitted counts elements already delivered as deltas, so the finalize
	// leftovers can be emitted without repeating them.
	emitted := 0
	finishElements := func() {
		all := parser.Finalize()
		if len(all) > emitted {
			c.sink.OnElements(all[emitted:])
			emitted = len(all)
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Cancellation is checked between events, never mid-decode
			flushForce()
			return agg.FinalBody(), collector.Calls(), ctx.Err()

		case <-ticker.C:
			if out, ok := agg.Flush(false); ok {
				c.sink.OnChunk(out)
				partial := chat.AddMessage(conv, assistantMessage(agg.FinalBody(), nil, conv))
				c.saver.Queue(partial)
			}

		case chunk, ok := <-chunks:
			if !ok {
				// Channel closed without a terminal chunk; treat as done
				flushForce()
				finishElements()
				return agg.FinalBody(), collector.Calls(), nil
			}
			if chunk.Err != nil {
				flushForce()
				return agg.FinalBody(), collector.Calls(), chunk.Err
			}
			if chunk.Done {
				flushForce()
				finishElements()
				return agg.FinalBody(), collector.Calls(), nil
			}

			if chunk.Content != "" {
				if flush, ok := agg.Append(chunk.Content); ok {
					c.sink.OnChunk(flush)
				}
				if delta := parser.AppendChunk(chunk.Content); len(delta) > 0 {
					c.sink.OnElements(delta)
					emitted += len(delta)
				}
			}
			for _, frag := range chunk.ToolCalls {
				collector.Add(frag)
			}
		}
	}
}

// executeCalls runs collected tool calls in arrival order. A failing call is
// recorded and execution continues; cancellation stops before the next call.
func (c *ChatController) executeCalls(ctx context.Context, calls []chat.ToolCall) ([]chat.ToolCall, error) {
	executed := make([]chat.ToolCall, 0, len(calls))

	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return executed, err
		}

		call.Status = chat.ToolCallExecuting
		c.sink.OnToolStatus(call)

		params, err := call.ParseArguments()
		if err != nil {
			call.Status = chat.ToolCallFailed
			call.Success = false
			call.Result = fmt.Sprintf(`{"error":%q}`, err.Error())
			c.sink.OnToolStatus(call)
			executed = append(executed, call)
			continue
		}

		result, err := c.tools.Execute(ctx, call.Function.Name, params)
		if err != nil {
			call.Status = chat.ToolCallFailed
			call.Success = false
			call.Result = fmt.Sprintf(`{"error":%q}`, result.Error)
		} else {
			call.Status = chat.ToolCallCompleted
			call.Success = true
			call.Result = result.Content
		}
		c.sink.OnToolStatus(call)
		executed = append(executed, call)
	}
	return executed, nil
}

// assistantMessage builds the assistant message for a round, stamping the
// provider and model that produced it.
func assistantMessage(body string, calls []chat.ToolCall, conv chat.Conversation) chat.Message {
	var msg chat.Message
	if len(calls) > 0 {
		msg = chat.NewAssistantToolCallMessage(calls)
		msg.Content = body
	} else {
		msg = chat.NewAssistantMessage(body)
	}
	msg.Provider = conv.Provider
	msg.Model = conv.Model
	return msg
}

// nameConversation kicks off the best-effort title side task. Results landing
// after the soft deadline, or after the user set a title manually, are
// discarded rather than applied.
func (c *ChatController) nameConversation(conv chat.Conversation) {
	if c.cfg == nil || !c.cfg.Naming.Enabled || c.store == nil || conv.Title != "" {
		return
	}
	first, ok := chat.GetLastUserMessage(conv)
	if !ok {
		return
	}

	timeout := c.cfg.Naming.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		msg, err := c.provider.Chat(ctx, llm.Request{
			Messages: []chat.Message{
				chat.NewSystemMessage("Generate a short title (at most five words) for a chat that starts with the following message. Reply with the title only."),
				chat.NewUserMessage(first.Content),
			},
		})
		if err != nil {
			logger.Debug("title generation failed: %v", err)
			return
		}
		if ctx.Err() != nil {
			// Soft deadline passed; a stale rename must not land
			return
		}

		title := sanitizeTitle(msg.Content)
		if title == "" {
			return
		}

		current, err := c.store.LoadConversation(conv.ID)
		if err != nil || current.Title != "" {
			return
		}
		if err := c.store.RenameConversation(conv.ID, title); err != nil {
			logger.Debug("failed to apply generated title: %v", err)
		}
	}()
}

func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.Trim(title, `"'`)
	if len(title) > 60 {
		title = title[:60]
	}
	return strings.TrimSpace(title)
}
