// Package blocks converts between typed content block trees and their linear
// Markdown rendering. It is the substrate both the differ and the import
// path operate on: remote pages are fetched as blocks and rendered to
// Markdown, local Markdown is decoded back to blocks before diffing.
package blocks

import (
	"strings"

	"github.com/starford/ehwaz/internal/models"
)

// IndentUnit is the number of spaces per nesting level.
const IndentUnit = 4

// Encode renders a block sequence to Markdown. Children are rendered
// recursively and indented by IndentUnit spaces per level. Consecutive
// list-like siblings are grouped without a blank line; every other
// transition gets exactly one blank line. Unsupported kinds render as
// empty string and are skipped.
func Encode(bs []models.Block) string {
	var sb strings.Builder
	var prevKind models.Kind
	first := true
	for _, b := range bs {
		chunk := encodeOne(b)
		if chunk == "" {
			continue
		}
		if !first {
			if prevKind.IsListKind() && b.Kind.IsListKind() {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(chunk)
		prevKind = b.Kind
		first = false
	}
	return sb.String()
}

func encodeOne(b models.Block) string {
	var head string
	switch b.Kind {
	case models.KindParagraph:
		head = b.PlainText()
	case models.KindHeading1:
		head = "# " + b.PlainText()
	case models.KindHeading2:
		head = "## " + b.PlainText()
	case models.KindHeading3:
		head = "### " + b.PlainText()
	case models.KindBulletedItem, models.KindToggle:
		head = "- " + b.PlainText()
	case models.KindNumberedItem:
		head = "1. " + b.PlainText()
	case models.KindCheckboxItem:
		box := "[ ]"
		if b.Checked {
			box = "[x]"
		}
		head = "- " + box + " " + b.PlainText()
	case models.KindQuote:
		head = "> " + b.PlainText()
	case models.KindDivider:
		head = "---"
	case models.KindCode:
		head = "```" + b.Language + "\n" + b.PlainText() + "\n```"
	default:
		return ""
	}
	if len(b.Children) > 0 {
		if nested := Encode(b.Children); nested != "" {
			head += "\n" + indent(nested)
		}
	}
	return head
}

// indent prefixes every line of s with one indentation unit.
func indent(s string) string {
	pad := strings.Repeat(" ", IndentUnit)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}
