package elements_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillchat/quill/pkg/elements"
)

func parseAll(text string) []elements.Element {
	p := elements.NewParser()
	p.AppendChunk(text)
	return p.Finalize()
}

var _ = Describe("Parser", func() {
	var parser *elements.Parser

	BeforeEach(func() {
		parser = elements.NewParser()
	})

	Describe("code blocks", func() {
		It("parses text around a fenced code block", func() {
			result := parseAll("Hello\n```swift\nlet x = 1\n```\nBye")
			Expect(result).To(Equal([]elements.Element{
				elements.Text{Content: "Hello"},
				elements.Code{Content: "let x = 1", Language: "swift", Indent: 0},
				elements.Text{Content: "Bye"},
			}))
		})

		It("delivers the same elements across arbitrary chunk boundaries", func() {
			parser.AppendChunk("Hel")
			parser.AppendChunk("lo\n```swift\nlet x")
			parser.AppendChunk(" = 1\n```\nBye")
			result := parser.Finalize()
			Expect(result).To(Equal([]elements.Element{
				elements.Text{Content: "Hello"},
				elements.Code{Content: "let x = 1", Language: "swift", Indent: 0},
				elements.Text{Content: "Bye"},
			}))
		})

		It("records the fence language and indentation", func() {
			result := parseAll("  ```python\n  print('hi')\n  ```\n")
			Expect(result).To(HaveLen(1))
			code, ok := result[0].(elements.Code)
			Expect(ok).To(BeTrue())
			Expect(code.Language).To(Equal("python"))
			Expect(code.Indent).To(Equal(2))
			Expect(code.Content).To(Equal("print('hi')"))
		})

		It("keeps a multi-line block together", func() {
			result := parseAll("```go\nfunc main() {\n\tfmt.Println(1)\n}\n```\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Code{Content: "func main() {\n\tfmt.Println(1)\n}", Language: "go", Indent: 0},
			}))
		})

		It("closes an unterminated block on finalize", func() {
			result := parseAll("```sh\necho hi")
			Expect(result).To(Equal([]elements.Element{
				elements.Code{Content: "echo hi", Language: "sh", Indent: 0},
			}))
		})
	})

	Describe("tables", func() {
		It("parses header, delimiter, and rows", func() {
			result := parseAll("| Name | Age |\n| --- | --- |\n| Ana | 3 |\n| Bo | 5 |\n\ndone")
			Expect(result).To(Equal([]elements.Element{
				elements.Table{
					Header: []string{"Name", "Age"},
					Rows:   [][]string{{"Ana", "3"}, {"Bo", "5"}},
				},
				elements.Text{Content: "done"},
			}))
		})

		It("skips alignment delimiter rows with colons", func() {
			result := parseAll("| a | b |\n|:---|---:|\n| 1 | 2 |\n")
			table, ok := result[0].(elements.Table)
			Expect(ok).To(BeTrue())
			Expect(table.Rows).To(Equal([][]string{{"1", "2"}}))
		})

		It("ends the table at the first non-pipe line", func() {
			result := parseAll("| x |\n| 1 |\nafter\n")
			Expect(result).To(HaveLen(2))
			Expect(result[1]).To(Equal(elements.Text{Content: "after"}))
		})
	})

	Describe("formulas", func() {
		It("parses a multi-line formula block", func() {
			result := parseAll("\\[\nE = mc^2\n\\]\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Formula{Content: "E = mc^2"},
			}))
		})

		It("closes a single-line formula immediately", func() {
			result := parseAll("\\[ x^2 + y^2 = z^2 \\]\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Formula{Content: "x^2 + y^2 = z^2"},
			}))
		})
	})

	Describe("thinking segments", func() {
		It("parses a multi-line thinking block", func() {
			result := parseAll("<think>\nstep one\nstep two\n</think>\nanswer")
			Expect(result).To(Equal([]elements.Element{
				elements.Thinking{Content: "step one\nstep two"},
				elements.Text{Content: "answer"},
			}))
		})

		It("handles open and close on the same line", func() {
			result := parseAll("<think>quick thought</think>\nanswer")
			Expect(result).To(Equal([]elements.Element{
				elements.Thinking{Content: "quick thought"},
				elements.Text{Content: "answer"},
			}))
		})

		It("separates leading text from the thinking segment", func() {
			result := parseAll("preface <think>hmm</think>\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Text{Content: "preface"},
				elements.Thinking{Content: "hmm"},
			}))
		})
	})

	Describe("media references", func() {
		It("extracts inline media tags as standalone elements", func() {
			result := parseAll("here: <image-uuid>img-42</image-uuid> and more\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Text{Content: "here:"},
				elements.ImageUUID{ID: "img-42"},
				elements.Text{Content: "and more"},
			}))
		})

		It("recognizes url and file references", func() {
			result := parseAll("<image-url>https://x/a.png</image-url>\n<file-uuid>f-1</file-uuid>\n")
			Expect(result).To(Equal([]elements.Element{
				elements.ImageURL{URL: "https://x/a.png"},
				elements.FileUUID{ID: "f-1"},
			}))
		})

		It("leaves an unclosed opening tag as plain text", func() {
			result := parseAll("<image-uuid>never closed\n")
			Expect(result).To(Equal([]elements.Element{
				elements.Text{Content: "<image-uuid>never closed"},
			}))
		})
	})

	Describe("unparsed tail", func() {
		It("holds a partial line until a newline arrives", func() {
			delta := parser.AppendChunk("| a | b ")
			Expect(delta).To(BeEmpty())

			delta = parser.AppendChunk("|\n| 1 | 2 |\nend\n")
			table, ok := delta[0].(elements.Table)
			Expect(ok).To(BeTrue())
			Expect(table.Header).To(Equal([]string{"a", "b"}))
		})

		It("exposes the tail through AllElements for live display", func() {
			parser.AppendChunk("Hello wor")
			live := parser.AllElements()
			Expect(live).To(Equal([]elements.Element{
				elements.Text{Content: "Hello wor"},
			}))
		})
	})

	Describe("delta semantics", func() {
		It("returns only elements completed since the previous call", func() {
			first := parser.AppendChunk("one\n```go\na := 1\n")
			Expect(first).To(Equal([]elements.Element{elements.Text{Content: "one"}}))

			second := parser.AppendChunk("```\n")
			Expect(second).To(Equal([]elements.Element{
				elements.Code{Content: "a := 1", Language: "go", Indent: 0},
			}))

			third := parser.AppendChunk("still open")
			Expect(third).To(BeEmpty())
		})

		It("never mutates an already completed element", func() {
			parser.AppendChunk("alpha\n```\n")
			snapshot := parser.AllElements()
			parser.AppendChunk("code line\n```\nmore\n")
			Expect(snapshot[0]).To(Equal(elements.Text{Content: "alpha"}))
		})
	})

	Describe("determinism", func() {
		It("produces identical output for any chunking of the same text", func() {
			text := "intro\n```rust\nlet v = vec![1];\n```\n| h |\n| - |\n| r |\n\\[ a+b \\]\n<think>why</think>\n<image-url>http://i/p.png</image-url>\ntail"
			want := parseAll(text)

			for _, size := range []int{1, 2, 3, 5, 11, len(text)} {
				p := elements.NewParser()
				for start := 0; start < len(text); start += size {
					end := start + size
					if end > len(text) {
						end = len(text)
					}
					p.AppendChunk(text[start:end])
				}
				Expect(p.Finalize()).To(Equal(want), "chunk size %d", size)
			}
		})
	})

	Describe("Reset", func() {
		It("clears completed elements and pending state", func() {
			parser.AppendChunk("some text\n```go\nopen block\n")
			parser.Reset()
			Expect(parser.AllElements()).To(BeEmpty())
			Expect(parser.Finalize()).To(BeEmpty())
		})
	})
})
