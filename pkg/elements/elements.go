package elements

// Element is a structured piece of assistant output ready for block-level
// rendering. Implementations form a closed set; switch over the concrete
// types to render.
type Element interface {
	isElement()
}

// Text is a run of plain prose
type Text struct {
	Content string
}

// Code is a fenced code block
type Code struct {
	Content  string
	Language string
	Indent   int
}

// Table is a pipe-delimited markdown table
type Table struct {
	Header []string
	Rows   [][]string
}

// Formula is a display-math block delimited by \[ and \]
type Formula struct {
	Content string
}

// Thinking is a model reasoning segment delimited by <think> tags
type Thinking struct {
	Content string
}

// ImageUUID references a generated image by id
type ImageUUID struct {
	ID string
}

// ImageURL references an image by URL
type ImageURL struct {
	URL string
}

// FileUUID references an uploaded or generated file by id
type FileUUID struct {
	ID string
}

func (Text) isElement()      {}
func (Code) isElement()      {}
func (Table) isElement()     {}
func (Formula) isElement()   {}
func (Thinking) isElement()  {}
func (ImageUUID) isElement() {}
func (ImageURL) isElement()  {}
func (FileUUID) isElement()  {}
