package controllers_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/controllers"
	"github.com/quillchat/quill/pkg/elements"
	"github.com/quillchat/quill/pkg/history"
	"github.com/quillchat/quill/pkg/llm"
	"github.com/quillchat/quill/pkg/tools"
)

// scriptedProvider replays canned chunk sequences, one per Stream call
type scriptedProvider struct {
	name   string
	model  string
	title  string
	rounds [][]llm.Chunk
	// hang keeps the stream open after its chunks until the context is
	// cancelled, for cancellation tests.
	hang bool

	mu       sync.Mutex
	requests []llm.Request
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return p.model }

func (p *scriptedProvider) Chat(ctx context.Context, req llm.Request) (chat.Message, error) {
	if p.title == "" {
		return chat.Message{}, fmt.Errorf("no chat response scripted")
	}
	return chat.NewAssistantMessage(p.title), nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests) - 1
	p.mu.Unlock()

	var script []llm.Chunk
	if call < len(p.rounds) {
		script = p.rounds[call]
	}

	chunks := make(chan llm.Chunk, 100)
	go func() {
		defer close(chunks)
		for _, chunk := range script {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				chunks <- llm.Chunk{Err: ctx.Err()}
				return
			}
		}
		if p.hang {
			<-ctx.Done()
			chunks <- llm.Chunk{Err: ctx.Err()}
			return
		}
	}()
	return chunks, nil
}

func (p *scriptedProvider) request(i int) llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// recorderSink captures everything delivered to the display layer
type recorderSink struct {
	mu         sync.Mutex
	chunks     []string
	elements   []elements.Element
	toolStatus []chat.ToolCall
	completes  []string
	failures   []error
}

func (r *recorderSink) OnChunk(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, text)
}

func (r *recorderSink) OnElements(els []elements.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements = append(r.elements, els...)
}

func (r *recorderSink) OnToolStatus(call chat.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolStatus = append(r.toolStatus, call)
}

func (r *recorderSink) OnComplete(final string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, final)
}

func (r *recorderSink) OnFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recorderSink) allChunks() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := ""
	for _, c := range r.chunks {
		out += c
	}
	return out
}

// echoTool records invocations and returns a fixed payload
type echoTool struct {
	mu     sync.Mutex
	params []map[string]any
}

func (e *echoTool) Name() string               { return "lookup" }
func (e *echoTool) Description() string        { return "looks things up" }
func (e *echoTool) JSONSchema() map[string]any { return tools.NewJSONSchema() }
func (e *echoTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	e.mu.Lock()
	e.params = append(e.params, params)
	e.mu.Unlock()
	return tools.Result{Success: true, Content: `{"value":42}`}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Stream.FlushInterval = 10 * time.Millisecond
	cfg.History.SaveDebounce = 20 * time.Millisecond
	return cfg
}

func openTestStore() (*history.Store, *history.Saver) {
	store, err := history.Open(filepath.Join(GinkgoT().TempDir(), "history.db"))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { store.Close() })
	saver := history.NewSaver(store, 20*time.Millisecond)
	DeferCleanup(saver.Close)
	return store, saver
}

var _ = Describe("ChatController", func() {
	var (
		sink  *recorderSink
		cfg   *config.Config
		store *history.Store
		saver *history.Saver
	)

	BeforeEach(func() {
		sink = &recorderSink{}
		cfg = testConfig()
		store, saver = openTestStore()
	})

	Describe("plain completion", func() {
		It("streams content, completes, and persists the final body", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{{
					{Content: "Hel"},
					{Content: "lo there"},
					{Done: true},
				}},
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			conv, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "hi")
			Expect(err).NotTo(HaveOccurred())

			last, ok := chat.GetLastAssistantMessage(conv)
			Expect(ok).To(BeTrue())
			Expect(last.Content).To(Equal("Hello there"))
			Expect(sink.allChunks()).To(Equal("Hello there"))
			Expect(sink.completes).To(Equal([]string{"Hello there"}))

			loaded, err := store.LoadConversation(conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Messages).To(HaveLen(2))
			Expect(loaded.Messages[1].Content).To(Equal("Hello there"))
		})

		It("emits structured elements for fenced content", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{{
					{Content: "Hel"},
					{Content: "lo\n```swift\nlet x"},
					{Content: " = 1\n```\nBye"},
					{Done: true},
				}},
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			_, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "code please")
			Expect(err).NotTo(HaveOccurred())

			Expect(sink.elements).To(Equal([]elements.Element{
				elements.Text{Content: "Hello"},
				elements.Code{Content: "let x = 1", Language: "swift", Indent: 0},
				elements.Text{Content: "Bye"},
			}))
		})

		It("rejects empty input", func() {
			provider := &scriptedProvider{name: "scripted", model: "m"}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			_, err := controller.Send(context.Background(), chat.NewConversation("scripted", "m"), "   ")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("cancellation", func() {
		It("commits the partial body exactly once and keeps it in history", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{{
					{Content: "partial "},
					{Content: "answer"},
				}},
				hang: true,
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			conv := chat.NewConversation("scripted", "test-model")
			conv.ID = "conv-cancel"

			type result struct {
				conv chat.Conversation
				err  error
			}
			done := make(chan result, 1)
			go func() {
				conv, err := controller.Send(context.Background(), conv, "hi")
				done <- result{conv, err}
			}()

			Eventually(func() string { return sink.allChunks() }, "2s", "5ms").Should(Equal("partial answer"))
			controller.Cancel("conv-cancel")

			var res result
			Eventually(done, "2s").Should(Receive(&res))
			Expect(res.err).To(MatchError(context.Canceled))

			// Exactly one assistant message carrying the flushed-so-far text
			assistants := chat.GetMessagesByRole(res.conv, chat.RoleAssistant)
			Expect(assistants).To(HaveLen(1))
			Expect(assistants[0].Content).To(Equal("partial answer"))

			loaded, err := store.LoadConversation("conv-cancel")
			Expect(err).NotTo(HaveOccurred())
			persisted := chat.GetMessagesByRole(loaded, chat.RoleAssistant)
			Expect(persisted).To(HaveLen(1))
			Expect(persisted[0].Content).To(Equal("partial answer"))
		})
	})

	Describe("stream errors", func() {
		It("preserves partial content and surfaces a typed failure", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{{
					{Content: "half a rep"},
					{Err: fmt.Errorf("connection reset")},
				}},
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			conv, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "hi")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("connection reset"))

			assistants := chat.GetMessagesByRole(conv, chat.RoleAssistant)
			Expect(assistants).To(HaveLen(1))
			Expect(assistants[0].Content).To(Equal("half a rep"))
			Expect(sink.failures).To(HaveLen(1))
		})
	})

	Describe("tool calls", func() {
		It("executes collected calls and resends without tools", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{
					{
						{ToolCalls: []chat.ToolCallFragment{{ID: "call_1", Name: "lookup", Arguments: `{"que`}}},
						{ToolCalls: []chat.ToolCallFragment{{Arguments: `ry":"x"}`}}},
						{Done: true},
					},
					{
						{Content: "The value is 42"},
						{Done: true},
					},
				},
			}

			tool := &echoTool{}
			registry := tools.NewRegistry()
			Expect(registry.Register(tool)).To(Succeed())

			controller := controllers.NewChatController(provider, registry, store, saver, sink, cfg)
			conv, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "look it up")
			Expect(err).NotTo(HaveOccurred())

			// First request offered tools, the follow-up must not
			Expect(provider.requestCount()).To(Equal(2))
			Expect(provider.request(0).Tools).NotTo(BeEmpty())
			Expect(provider.request(1).Tools).To(BeEmpty())

			// Fragmented arguments were reassembled before execution
			Expect(tool.params).To(HaveLen(1))
			Expect(tool.params[0]).To(Equal(map[string]any{"query": "x"}))

			// user, assistant(tool calls), tool result, assistant answer
			Expect(conv.Messages).To(HaveLen(4))
			Expect(conv.Messages[1].HasToolCalls()).To(BeTrue())
			Expect(conv.Messages[2].Role).To(Equal(chat.RoleTool))
			Expect(conv.Messages[2].Content).To(Equal(`{"value":42}`))
			Expect(conv.Messages[3].Content).To(Equal("The value is 42"))

			// calling -> executing -> completed surfaced to the sink
			statuses := make([]chat.ToolCallStatus, 0, len(sink.toolStatus))
			for _, call := range sink.toolStatus {
				statuses = append(statuses, call.Status)
			}
			Expect(statuses).To(Equal([]chat.ToolCallStatus{chat.ToolCallExecuting, chat.ToolCallCompleted}))
		})

		It("records a failing call and continues the batch", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{
					{
						{ToolCalls: []chat.ToolCallFragment{{ID: "call_1", Name: "missing", Arguments: `{}`}}},
						{ToolCalls: []chat.ToolCallFragment{{ID: "call_2", Name: "lookup", Arguments: `{}`}}},
						{Done: true},
					},
					{
						{Content: "recovered"},
						{Done: true},
					},
				},
			}

			registry := tools.NewRegistry()
			Expect(registry.Register(&echoTool{})).To(Succeed())

			controller := controllers.NewChatController(provider, registry, store, saver, sink, cfg)
			conv, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "go")
			Expect(err).NotTo(HaveOccurred())

			toolMessages := chat.GetMessagesByRole(conv, chat.RoleTool)
			Expect(toolMessages).To(HaveLen(2))
			Expect(toolMessages[0].Content).To(ContainSubstring("error"))
			Expect(toolMessages[1].Content).To(Equal(`{"value":42}`))

			last, _ := chat.GetLastAssistantMessage(conv)
			Expect(last.Content).To(Equal("recovered"))
		})
	})

	Describe("retry", func() {
		It("re-sends the last user message without duplicating it", func() {
			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				rounds: [][]llm.Chunk{{
					{Content: "second attempt"},
					{Done: true},
				}},
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			conv := chat.NewConversation("scripted", "test-model")
			conv = chat.AddMessage(conv, chat.NewUserMessage("try again"))
			conv = chat.AddMessage(conv, chat.NewErrorMessage("boom"))

			conv, err := controller.Retry(context.Background(), conv)
			Expect(err).NotTo(HaveOccurred())

			users := chat.GetMessagesByRole(conv, chat.RoleUser)
			Expect(users).To(HaveLen(1))
			Expect(chat.GetMessagesByRole(conv, chat.RoleError)).To(BeEmpty())

			last, _ := chat.GetLastAssistantMessage(conv)
			Expect(last.Content).To(Equal("second attempt"))
		})
	})

	Describe("chat naming", func() {
		It("applies a generated title once the conversation completes", func() {
			cfg.Naming.Enabled = true
			cfg.Naming.Timeout = time.Second

			provider := &scriptedProvider{
				name:  "scripted",
				model: "test-model",
				title: `"Greetings Chat"`,
				rounds: [][]llm.Chunk{{
					{Content: "hello"},
					{Done: true},
				}},
			}
			controller := controllers.NewChatController(provider, nil, store, saver, sink, cfg)

			conv, err := controller.Send(context.Background(), chat.NewConversation("scripted", "test-model"), "hi")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() string {
				loaded, err := store.LoadConversation(conv.ID)
				if err != nil {
					return ""
				}
				return loaded.Title
			}, "2s", "10ms").Should(Equal("Greetings Chat"))
		})
	})
})
