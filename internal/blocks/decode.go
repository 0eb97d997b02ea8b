package blocks

import (
	"regexp"
	"strings"

	"github.com/starford/ehwaz/internal/models"
)

var numberedRe = regexp.MustCompile(`^\d+\. `)

// decNode is the mutable tree node used during decoding. Child slices of
// models.Block would reallocate under the stack's pointers, so the tree is
// built out of stable pointers and materialized at the end.
type decNode struct {
	block    models.Block
	children []*decNode
}

func (n *decNode) materialize() models.Block {
	b := n.block
	for _, c := range n.children {
		b.Children = append(b.Children, c.materialize())
	}
	return b
}

// Decode parses Markdown text into a block tree. Lines are classified by
// leading token; the leading-whitespace run divided by IndentUnit gives the
// nesting depth, tracked with a stack of "current block at depth D". Blank
// lines terminate an accumulating paragraph but do not affect structure.
func Decode(text string) []models.Block {
	lines := strings.Split(text, "\n")

	root := &decNode{}
	cur := []*decNode{} // cur[d] = last block attached at depth d
	var para *decNode   // paragraph currently accumulating lines
	paraDepth := -1

	attach := func(n *decNode, depth int) int {
		if depth > len(cur) {
			depth = len(cur)
		}
		parent := root
		if depth > 0 {
			parent = cur[depth-1]
		}
		parent.children = append(parent.children, n)
		cur = append(cur[:depth], n)
		return depth
	}

	for i := 0; i < len(lines); i++ {
		raw := lines[i]
		if strings.TrimSpace(raw) == "" {
			para = nil
			continue
		}

		ws := len(raw) - len(strings.TrimLeft(raw, " "))
		depth := ws / IndentUnit
		content := raw[ws:]

		if strings.HasPrefix(content, "```") {
			lang := strings.TrimSpace(strings.TrimPrefix(content, "```"))
			var body []string
			j := i + 1
			for ; j < len(lines); j++ {
				inner := trimIndent(lines[j], ws)
				if strings.TrimRight(inner, " ") == "```" {
					break
				}
				body = append(body, inner)
			}
			i = j
			n := &decNode{block: models.TextBlock(models.KindCode, strings.Join(body, "\n"))}
			n.block.Language = lang
			attach(n, depth)
			para = nil
			continue
		}

		b, isPara := classify(content)
		if isPara {
			if para != nil && paraDepth == depth {
				para.block.Runs[0].Text += "\n" + content
				continue
			}
			n := &decNode{block: b}
			paraDepth = attach(n, depth)
			para = n
			continue
		}

		attach(&decNode{block: b}, depth)
		para = nil
	}

	out := make([]models.Block, 0, len(root.children))
	for _, c := range root.children {
		out = append(out, c.materialize())
	}
	return out
}

// classify maps a dedented line to a block. The second return is true when
// the line is a plain paragraph line (eligible for accumulation).
func classify(content string) (models.Block, bool) {
	switch {
	case strings.HasPrefix(content, "### "):
		return models.TextBlock(models.KindHeading3, strings.TrimPrefix(content, "### ")), false
	case strings.HasPrefix(content, "## "):
		return models.TextBlock(models.KindHeading2, strings.TrimPrefix(content, "## ")), false
	case strings.HasPrefix(content, "# "):
		return models.TextBlock(models.KindHeading1, strings.TrimPrefix(content, "# ")), false
	case strings.HasPrefix(content, "- [ ] "), strings.HasPrefix(content, "- [x] "), strings.HasPrefix(content, "- [X] "):
		b := models.TextBlock(models.KindCheckboxItem, content[6:])
		b.Checked = content[3] == 'x' || content[3] == 'X'
		return b, false
	case strings.HasPrefix(content, "- "):
		return models.TextBlock(models.KindBulletedItem, strings.TrimPrefix(content, "- ")), false
	case numberedRe.MatchString(content):
		loc := numberedRe.FindStringIndex(content)
		return models.TextBlock(models.KindNumberedItem, content[loc[1]:]), false
	case strings.HasPrefix(content, "> "):
		return models.TextBlock(models.KindQuote, strings.TrimPrefix(content, "> ")), false
	case strings.TrimRight(content, " ") == "---":
		return models.Block{Kind: models.KindDivider}, false
	default:
		return models.TextBlock(models.KindParagraph, content), true
	}
}

// trimIndent strips up to n leading spaces.
func trimIndent(s string, n int) string {
	for i := 0; i < n && len(s) > 0 && s[0] == ' '; i++ {
		s = s[1:]
	}
	return s
}
