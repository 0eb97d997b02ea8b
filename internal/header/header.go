// Package header reads and writes the structured metadata block embedded at
// the top of a vault document: an ordered set of key-value lines between two
// `---` fences at offset 0. The `last_edited_time` field is the sync
// watermark linking a document to the last known state of its remote page.
package header

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Required field keys for a remote-linked document.
const (
	KeyPageID       = "remote_page_id"
	KeyWatermark    = "last_edited_time"
	KeyImportedFrom = "imported_from"
	KeyTitle        = "title"

	// ImportedFrom is the provenance marker value written on import.
	ImportedFrom = "notion"
)

// Field is one ordered key-value entry.
type Field struct {
	Key   string
	Value string
}

// Header is the ordered metadata mapping. Keys are case-sensitive; at most
// one Header exists per document, always at the start.
type Header struct {
	fields []Field
}

// New returns an empty header.
func New() *Header {
	return &Header{}
}

// Get returns the value for key and whether it is present.
func (h *Header) Get(key string) (string, bool) {
	for _, f := range h.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set updates key in place, preserving field order, or appends it.
func (h *Header) Set(key, value string) {
	for i, f := range h.fields {
		if f.Key == key {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Field{Key: key, Value: value})
}

// Fields returns a copy of the ordered fields.
func (h *Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Linked reports whether the header carries a remote page identity.
func (h *Header) Linked() bool {
	id, ok := h.Get(KeyPageID)
	return ok && id != ""
}

// Parse splits text into its Header and Body. The third return is false when
// no well-formed header is present, in which case the full text is the body
// (the document is treated as not linked, never as an error).
func Parse(text string) (*Header, string, bool) {
	if !strings.HasPrefix(text, "---\n") {
		return nil, text, false
	}
	rest := text[len("---\n"):]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, text, false
	}
	after := rest[idx+len("\n---"):]
	if after != "" && !strings.HasPrefix(after, "\n") {
		return nil, text, false
	}
	raw := rest[:idx]
	body := strings.TrimLeft(after, "\n")

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, text, false
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, text, false
	}
	mapping := doc.Content[0]

	h := New()
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k := mapping.Content[i]
		v := mapping.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			continue
		}
		h.fields = append(h.fields, Field{Key: k.Value, Value: v.Value})
	}
	return h, body, true
}

// Render serializes the header between its fences. Values containing a
// newline, double quote, or colon are double-quote wrapped with internal
// quotes and newlines escaped, so the output stays line-oriented.
func (h *Header) Render() string {
	var sb strings.Builder
	sb.WriteString("---\n")
	for _, f := range h.fields {
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(encodeValue(f.Value))
		sb.WriteString("\n")
	}
	sb.WriteString("---")
	return sb.String()
}

// Compose joins a header and body back into document text.
func Compose(h *Header, body string) string {
	if body == "" {
		return h.Render() + "\n"
	}
	return h.Render() + "\n" + body
}

func encodeValue(v string) string {
	if !strings.ContainsAny(v, "\n\":") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(v) + `"`
}

// SanitizeKey maps a remote property name to the safe key alphabet:
// lowercased, with every non-alphanumeric rune replaced by underscore.
func SanitizeKey(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
