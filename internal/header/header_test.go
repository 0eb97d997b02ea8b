package header

import (
	"strings"
	"testing"
)

const sample = "---\nremote_page_id: abc-123\nlast_edited_time: 2024-01-01T00:00:00Z\nimported_from: notion\ntitle: Hello\n---\nBody text.\n"

func TestParse_WellFormed(t *testing.T) {
	h, body, ok := Parse(sample)
	if !ok {
		t.Fatal("expected header")
	}
	if id, _ := h.Get(KeyPageID); id != "abc-123" {
		t.Errorf("page id = %q", id)
	}
	if wm, _ := h.Get(KeyWatermark); wm != "2024-01-01T00:00:00Z" {
		t.Errorf("watermark = %q", wm)
	}
	if body != "Body text.\n" {
		t.Errorf("body = %q", body)
	}
	if !h.Linked() {
		t.Error("expected linked")
	}
}

func TestParse_NoHeader(t *testing.T) {
	text := "# Just markdown\n"
	h, body, ok := Parse(text)
	if ok || h != nil {
		t.Error("expected no header")
	}
	if body != text {
		t.Errorf("body = %q", body)
	}
}

func TestParse_UnclosedFence(t *testing.T) {
	text := "---\ntitle: X\nno closing fence"
	if _, body, ok := Parse(text); ok || body != text {
		t.Errorf("unclosed fence should fall back to body, got ok=%v body=%q", ok, body)
	}
}

func TestParse_PreservesFieldOrder(t *testing.T) {
	h, _, ok := Parse(sample)
	if !ok {
		t.Fatal("expected header")
	}
	keys := make([]string, 0, 4)
	for _, f := range h.Fields() {
		keys = append(keys, f.Key)
	}
	want := []string{KeyPageID, KeyWatermark, KeyImportedFrom, KeyTitle}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d = %q, want %q", i, keys[i], k)
		}
	}
}

func TestRoundTrip_SetWatermark(t *testing.T) {
	h, body, ok := Parse(sample)
	if !ok {
		t.Fatal("expected header")
	}
	h.Set(KeyWatermark, "2024-06-01T12:00:00Z")

	h2, body2, ok := Parse(Compose(h, body))
	if !ok {
		t.Fatal("expected header after round trip")
	}
	if wm, _ := h2.Get(KeyWatermark); wm != "2024-06-01T12:00:00Z" {
		t.Errorf("watermark = %q", wm)
	}
	if id, _ := h2.Get(KeyPageID); id != "abc-123" {
		t.Errorf("other field changed: %q", id)
	}
	if body2 != body {
		t.Errorf("body changed: %q", body2)
	}
}

func TestRoundTrip_StructuralCharactersQuoted(t *testing.T) {
	h := New()
	h.Set("title", `He said "hi": twice`)
	h.Set("note", "line one\nline two")

	rendered := h.Render()
	if strings.Count(rendered, "\n") != 3 {
		t.Errorf("quoted values must stay on one line:\n%s", rendered)
	}

	h2, _, ok := Parse(rendered + "\n")
	if !ok {
		t.Fatalf("re-parse failed:\n%s", rendered)
	}
	if v, _ := h2.Get("title"); v != `He said "hi": twice` {
		t.Errorf("title = %q", v)
	}
	if v, _ := h2.Get("note"); v != "line one\nline two" {
		t.Errorf("note = %q", v)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"Due Date":    "due_date",
		"Status":      "status",
		"Prio/Rank!":  "prio_rank_",
		"already_ok1": "already_ok1",
	}
	for in, want := range cases {
		if got := SanitizeKey(in); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompose_EmptyBody(t *testing.T) {
	h := New()
	h.Set(KeyTitle, "T")
	text := Compose(h, "")
	h2, body, ok := Parse(text)
	if !ok {
		t.Fatal("expected header")
	}
	if v, _ := h2.Get(KeyTitle); v != "T" || body != "" {
		t.Errorf("got title=%q body=%q", v, body)
	}
}
