package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillchat/quill/pkg/chat"
)

var _ = Describe("ToolCallCollector", func() {
	var collector *chat.ToolCallCollector

	BeforeEach(func() {
		collector = chat.NewToolCallCollector()
	})

	It("starts empty", func() {
		Expect(collector.HasCalls()).To(BeFalse())
		Expect(collector.Calls()).To(BeEmpty())
	})

	It("reassembles arguments split across fragments", func() {
		collector.Add(chat.ToolCallFragment{ID: "call_1", Name: "execute_bash"})
		collector.Add(chat.ToolCallFragment{Arguments: `{"comm`})
		collector.Add(chat.ToolCallFragment{Arguments: `and":"ls"}`})

		calls := collector.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].ID).To(Equal("call_1"))
		Expect(calls[0].Function.Name).To(Equal("execute_bash"))
		Expect(calls[0].Function.Arguments).To(MatchJSON(`{"command":"ls"}`))
		Expect(calls[0].Status).To(Equal(chat.ToolCallCalling))
	})

	It("keeps concurrent calls separate and in arrival order", func() {
		collector.Add(chat.ToolCallFragment{ID: "call_b", Name: "read_file", Arguments: `{"path":`})
		collector.Add(chat.ToolCallFragment{ID: "call_a", Name: "execute_bash", Arguments: `{}`})
		collector.Add(chat.ToolCallFragment{ID: "call_b", Arguments: `"a.txt"}`})

		calls := collector.Calls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].ID).To(Equal("call_b"))
		Expect(calls[0].Function.Arguments).To(MatchJSON(`{"path":"a.txt"}`))
		Expect(calls[1].ID).To(Equal("call_a"))
	})

	It("routes empty-id fragments to the most recent call", func() {
		collector.Add(chat.ToolCallFragment{ID: "call_1", Name: "exec"})
		collector.Add(chat.ToolCallFragment{Name: "ute_bash"})

		Expect(collector.Calls()[0].Function.Name).To(Equal("execute_bash"))
	})

	It("drops fragments arriving before any id", func() {
		collector.Add(chat.ToolCallFragment{Arguments: `{"orphaned":true}`})
		Expect(collector.HasCalls()).To(BeFalse())
	})

	It("Reset clears collected state", func() {
		collector.Add(chat.ToolCallFragment{ID: "call_1", Name: "lookup"})
		collector.Reset()
		Expect(collector.HasCalls()).To(BeFalse())

		collector.Add(chat.ToolCallFragment{Arguments: `{}`})
		Expect(collector.HasCalls()).To(BeFalse(), "last-id routing should not survive a reset")
	})
})

var _ = Describe("ToolCall ParseArguments", func() {
	It("parses well-formed arguments", func() {
		call := chat.ToolCall{Function: chat.ToolFunction{Arguments: `{"query":"go","limit":3}`}}
		params, err := call.ParseArguments()
		Expect(err).NotTo(HaveOccurred())
		Expect(params).To(HaveKeyWithValue("query", "go"))
		Expect(params).To(HaveKeyWithValue("limit", float64(3)))
	})

	It("treats empty arguments as no parameters", func() {
		params, err := chat.ToolCall{}.ParseArguments()
		Expect(err).NotTo(HaveOccurred())
		Expect(params).To(BeEmpty())
	})

	It("repairs truncated JSON before giving up", func() {
		call := chat.ToolCall{Function: chat.ToolFunction{Arguments: `{"query":"go"`}}
		params, err := call.ParseArguments()
		Expect(err).NotTo(HaveOccurred())
		Expect(params).To(HaveKeyWithValue("query", "go"))
	})

	It("reports arguments that cannot be interpreted as an object", func() {
		call := chat.ToolCall{Function: chat.ToolFunction{Arguments: `"just a string"`}}
		_, err := call.ParseArguments()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ToolCallStatus", func() {
	It("renders each status", func() {
		Expect(chat.ToolCallCalling.String()).To(Equal("calling"))
		Expect(chat.ToolCallExecuting.String()).To(Equal("executing"))
		Expect(chat.ToolCallCompleted.String()).To(Equal("completed"))
		Expect(chat.ToolCallFailed.String()).To(Equal("failed"))
	})
})
