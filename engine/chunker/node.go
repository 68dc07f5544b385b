package chunker

import "strings"

// Node is one structural element of a parsed page, in document order.
// The concrete types are Heading, Paragraph, ListItem, Code and Table.
type Node interface {
	node()
}

// Heading starts a section. Level 1 is the outermost heading.
type Heading struct {
	Level int
	Text  string
}

// Paragraph is a block of prose.
type Paragraph struct {
	Text string
}

// ListItem is a single bullet or numbered item.
type ListItem struct {
	Text string
}

// Code is a preformatted code block.
type Code struct {
	Language string
	Text     string
}

// Table is a table block. Rows may be nil when the parser could not recover
// the cell structure; Text then carries the flattened table text.
type Table struct {
	Rows [][]string
	Text string
}

func (Heading) node()   {}
func (Paragraph) node() {}
func (ListItem) node()  {}
func (Code) node()      {}
func (Table) node()     {}

// RawNode is the wire form produced by the external structural parser.
type RawNode struct {
	Type     string     `json:"type"`
	Text     string     `json:"text"`
	Level    int        `json:"level,omitempty"`
	Language string     `json:"language,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
}

// ParseNode converts a RawNode into its typed form. Unknown types report false.
func ParseNode(r RawNode) (Node, bool) {
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "heading", "header", "h":
		level := r.Level
		if level < 1 {
			level = 1
		}
		return Heading{Level: level, Text: r.Text}, true
	case "paragraph", "p", "text":
		return Paragraph{Text: r.Text}, true
	case "list_item", "listitem", "li":
		return ListItem{Text: r.Text}, true
	case "code", "code_block", "pre":
		return Code{Language: r.Language, Text: r.Text}, true
	case "table":
		return Table{Rows: r.Rows, Text: r.Text}, true
	default:
		return nil, false
	}
}

// ParseNodes converts a parser node sequence, dropping unknown node types.
func ParseNodes(raw []RawNode) []Node {
	nodes := make([]Node, 0, len(raw))
	for _, r := range raw {
		if n, ok := ParseNode(r); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
