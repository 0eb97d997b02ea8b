package models

// Kind identifies a block's content type.
type Kind string

// Supported block kinds. Anything else a remote page contains is skipped.
const (
	KindParagraph    Kind = "paragraph"
	KindHeading1     Kind = "heading_1"
	KindHeading2     Kind = "heading_2"
	KindHeading3     Kind = "heading_3"
	KindBulletedItem Kind = "bulleted_list_item"
	KindNumberedItem Kind = "numbered_list_item"
	KindCheckboxItem Kind = "to_do"
	KindToggle       Kind = "toggle"
	KindQuote        Kind = "quote"
	KindCode         Kind = "code"
	KindDivider      Kind = "divider"
)

// TextRun is a single inline run of text inside a block.
type TextRun struct {
	Text string `json:"text"`
}

// Block is a typed content node. Blocks are ephemeral: they are rebuilt from
// remote state or from vault Markdown on every operation. ID is the remote
// block identity when the block was fetched from the remote store, empty for
// blocks decoded from local text.
type Block struct {
	ID       string    `json:"id,omitempty"`
	Kind     Kind      `json:"kind"`
	Runs     []TextRun `json:"runs,omitempty"`
	Checked  bool      `json:"checked,omitempty"`  // to_do only
	Language string    `json:"language,omitempty"` // code only
	Children []Block   `json:"children,omitempty"`
}

// PlainText concatenates the block's inline runs.
func (b Block) PlainText() string {
	var out string
	for _, r := range b.Runs {
		out += r.Text
	}
	return out
}

// TextBlock builds a block of the given kind with a single run.
func TextBlock(kind Kind, text string) Block {
	return Block{Kind: kind, Runs: []TextRun{{Text: text}}}
}

// IsListKind reports whether the kind renders as a Markdown list item.
func (k Kind) IsListKind() bool {
	switch k {
	case KindBulletedItem, KindNumberedItem, KindCheckboxItem, KindToggle:
		return true
	}
	return false
}

// BearsText reports whether the kind carries inline runs.
func (k Kind) BearsText() bool {
	return k != KindDivider
}
