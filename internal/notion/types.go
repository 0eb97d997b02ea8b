// Package notion implements the remote document-store capability surface:
// wire types, an HTTP client, transient-failure retry, and a scheduled view
// that routes every call through the shared rate-limited scheduler.
package notion

import (
	"time"

	"github.com/starford/ehwaz/internal/models"
)

// RichText is one inline run of a block or property value.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

// TextContent is the writable payload of a rich text run.
type TextContent struct {
	Content string `json:"content"`
}

// NewRichText wraps a plain string in a single writable rich text run.
func NewRichText(s string) []RichText {
	return []RichText{{Type: "text", Text: &TextContent{Content: s}, PlainText: s}}
}

func plainText(runs []RichText) string {
	var out string
	for _, r := range runs {
		if r.PlainText != "" {
			out += r.PlainText
		} else if r.Text != nil {
			out += r.Text.Content
		}
	}
	return out
}

// Date is a date property value.
type Date struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Property is a page property value. Only the variants the import path
// mirrors into header fields are modeled.
type Property struct {
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type"`
	Title    []RichText `json:"title,omitempty"`
	RichText []RichText `json:"rich_text,omitempty"`
	Date     *Date      `json:"date,omitempty"`
}

// Text renders the property to the string stored in a header field, or ""
// when the variant is not representable.
func (p Property) Text() string {
	switch p.Type {
	case "title":
		return plainText(p.Title)
	case "rich_text":
		return plainText(p.RichText)
	case "date":
		if p.Date != nil {
			return p.Date.Start
		}
	}
	return ""
}

// Page is a remote page with its properties.
type Page struct {
	ID             string              `json:"id"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	Properties     map[string]Property `json:"properties"`
}

// Title returns the page title: the text of its first title-kind property.
func (p *Page) Title() string {
	for _, prop := range p.Properties {
		if prop.Type == "title" {
			return plainText(prop.Title)
		}
	}
	return ""
}

// Database is a remote database container.
type Database struct {
	ID    string     `json:"id"`
	Title []RichText `json:"title,omitempty"`
}

// PageList is one page of database query or search results.
type PageList struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// richBody holds rich text plus optional nested children; shared by most
// text-bearing block variants.
type richBody struct {
	RichText []RichText `json:"rich_text"`
	Children []Block    `json:"children,omitempty"`
}

type toDoBody struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
	Children []Block    `json:"children,omitempty"`
}

type codeBody struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language,omitempty"`
}

// Block is the wire representation of a remote content block.
type Block struct {
	Object      string `json:"object,omitempty"`
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children,omitempty"`

	Paragraph        *richBody `json:"paragraph,omitempty"`
	Heading1         *richBody `json:"heading_1,omitempty"`
	Heading2         *richBody `json:"heading_2,omitempty"`
	Heading3         *richBody `json:"heading_3,omitempty"`
	BulletedListItem *richBody `json:"bulleted_list_item,omitempty"`
	NumberedListItem *richBody `json:"numbered_list_item,omitempty"`
	ToDo             *toDoBody `json:"to_do,omitempty"`
	Toggle           *richBody `json:"toggle,omitempty"`
	Quote            *richBody `json:"quote,omitempty"`
	Code             *codeBody `json:"code,omitempty"`
	Divider          *struct{} `json:"divider,omitempty"`
}

// BlockList is one page of child block results.
type BlockList struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

func (b Block) body() *richBody {
	switch b.Type {
	case "paragraph":
		return b.Paragraph
	case "heading_1":
		return b.Heading1
	case "heading_2":
		return b.Heading2
	case "heading_3":
		return b.Heading3
	case "bulleted_list_item":
		return b.BulletedListItem
	case "numbered_list_item":
		return b.NumberedListItem
	case "toggle":
		return b.Toggle
	case "quote":
		return b.Quote
	}
	return nil
}

// ToModel converts a wire block to the domain model. The second return is
// false for unsupported kinds, which callers skip without error.
func ToModel(b Block) (models.Block, bool) {
	out := models.Block{ID: b.ID, Kind: models.Kind(b.Type)}
	switch b.Type {
	case "to_do":
		if b.ToDo == nil {
			return models.Block{}, false
		}
		out.Runs = toRuns(b.ToDo.RichText)
		out.Checked = b.ToDo.Checked
	case "code":
		if b.Code == nil {
			return models.Block{}, false
		}
		out.Runs = toRuns(b.Code.RichText)
		out.Language = b.Code.Language
	case "divider":
		// no payload
	default:
		body := b.body()
		if body == nil {
			return models.Block{}, false
		}
		out.Runs = toRuns(body.RichText)
	}
	return out, true
}

// FromModel converts a domain block (and its children) to the writable wire
// form used by append calls.
func FromModel(mb models.Block) Block {
	b := Block{Object: "block", Type: string(mb.Kind)}
	runs := NewRichText(mb.PlainText())
	var children []Block
	for _, c := range mb.Children {
		children = append(children, FromModel(c))
	}
	switch mb.Kind {
	case models.KindCheckboxItem:
		b.ToDo = &toDoBody{RichText: runs, Checked: mb.Checked, Children: children}
	case models.KindCode:
		b.Code = &codeBody{RichText: runs, Language: mb.Language}
	case models.KindDivider:
		b.Divider = &struct{}{}
	case models.KindHeading1:
		b.Heading1 = &richBody{RichText: runs, Children: children}
	case models.KindHeading2:
		b.Heading2 = &richBody{RichText: runs, Children: children}
	case models.KindHeading3:
		b.Heading3 = &richBody{RichText: runs, Children: children}
	case models.KindBulletedItem:
		b.BulletedListItem = &richBody{RichText: runs, Children: children}
	case models.KindNumberedItem:
		b.NumberedListItem = &richBody{RichText: runs, Children: children}
	case models.KindToggle:
		b.Toggle = &richBody{RichText: runs, Children: children}
	case models.KindQuote:
		b.Quote = &richBody{RichText: runs, Children: children}
	default:
		b.Type = "paragraph"
		b.Paragraph = &richBody{RichText: runs, Children: children}
	}
	return b
}

func toRuns(rt []RichText) []models.TextRun {
	runs := make([]models.TextRun, 0, len(rt))
	for _, r := range rt {
		text := r.PlainText
		if text == "" && r.Text != nil {
			text = r.Text.Content
		}
		runs = append(runs, models.TextRun{Text: text})
	}
	return runs
}
