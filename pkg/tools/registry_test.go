package tools_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/tools"
)

type stubTool struct {
	name   string
	result tools.Result
	err    error
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub" }
func (s *stubTool) JSONSchema() map[string]any { return tools.NewJSONSchema() }
func (s *stubTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	return s.result, s.err
}

var _ = Describe("Registry", func() {
	var registry *tools.Registry

	BeforeEach(func() {
		registry = tools.NewRegistry()
	})

	It("registers and retrieves tools by name", func() {
		Expect(registry.Register(&stubTool{name: "alpha"})).To(Succeed())

		tool, ok := registry.Get("alpha")
		Expect(ok).To(BeTrue())
		Expect(tool.Name()).To(Equal("alpha"))
	})

	It("rejects duplicate registration", func() {
		Expect(registry.Register(&stubTool{name: "alpha"})).To(Succeed())
		Expect(registry.Register(&stubTool{name: "alpha"})).To(HaveOccurred())
	})

	It("rejects unnamed tools", func() {
		Expect(registry.Register(&stubTool{})).To(HaveOccurred())
	})

	It("lists tool names sorted", func() {
		Expect(registry.Register(&stubTool{name: "zeta"})).To(Succeed())
		Expect(registry.Register(&stubTool{name: "alpha"})).To(Succeed())
		Expect(registry.List()).To(Equal([]string{"alpha", "zeta"}))
		Expect(registry.HasTools()).To(BeTrue())
	})

	It("fails execution of unknown tools", func() {
		result, err := registry.Execute(context.Background(), "missing", nil)
		Expect(err).To(HaveOccurred())
		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring("not found"))
	})

	It("surfaces tool errors in the result", func() {
		Expect(registry.Register(&stubTool{
			name: "broken",
			err:  fmt.Errorf("boom"),
		})).To(Succeed())

		result, err := registry.Execute(context.Background(), "broken", nil)
		Expect(err).To(HaveOccurred())
		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(Equal("boom"))
	})

	It("builds function-calling definitions", func() {
		Expect(registry.Register(tools.NewBashTool(time.Second))).To(Succeed())

		defs := registry.Definitions()
		Expect(defs).To(HaveLen(1))
		Expect(defs[0]["type"]).To(Equal("function"))

		fn, ok := defs[0]["function"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(fn["name"]).To(Equal("execute_bash"))
		Expect(fn["parameters"]).NotTo(BeNil())
	})
})

var _ = Describe("DefaultRegistry", func() {
	It("registers builtins per configuration", func() {
		cfg := &config.Config{}
		cfg.Tools.Enabled = true
		cfg.Tools.Bash.Enabled = true
		cfg.Tools.FileRead.Enabled = true

		registry := tools.DefaultRegistry(cfg)
		Expect(registry.List()).To(Equal([]string{"execute_bash", "read_file"}))
	})

	It("stays empty when tools are disabled", func() {
		cfg := &config.Config{}
		registry := tools.DefaultRegistry(cfg)
		Expect(registry.HasTools()).To(BeFalse())
	})
})

var _ = Describe("BashTool", func() {
	It("executes a command and captures its output", func() {
		tool := tools.NewBashTool(5 * time.Second)
		result, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Content).To(Equal("hello\n"))
	})

	It("rejects an empty command", func() {
		tool := tools.NewBashTool(5 * time.Second)
		_, err := tool.Execute(context.Background(), map[string]any{"command": "  "})
		Expect(err).To(HaveOccurred())
	})

	It("reports a failed command with its output", func() {
		tool := tools.NewBashTool(5 * time.Second)
		result, err := tool.Execute(context.Background(), map[string]any{"command": "ls /definitely/not/here"})
		Expect(err).To(HaveOccurred())
		Expect(result.Success).To(BeFalse())
	})
})

var _ = Describe("ReadFileTool", func() {
	It("reads an existing file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "note.txt")
		Expect(os.WriteFile(path, []byte("contents"), 0o644)).To(Succeed())

		tool := tools.NewReadFileTool(1024)
		result, err := tool.Execute(context.Background(), map[string]any{"path": path})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Content).To(Equal("contents"))
	})

	It("refuses files over the size limit", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "big.txt")
		Expect(os.WriteFile(path, make([]byte, 64), 0o644)).To(Succeed())

		tool := tools.NewReadFileTool(16)
		result, err := tool.Execute(context.Background(), map[string]any{"path": path})
		Expect(err).To(HaveOccurred())
		Expect(result.Error).To(ContainSubstring("limit"))
	})

	It("fails on a missing file", func() {
		tool := tools.NewReadFileTool(1024)
		_, err := tool.Execute(context.Background(), map[string]any{"path": "/no/such/file"})
		Expect(err).To(HaveOccurred())
	})
})
