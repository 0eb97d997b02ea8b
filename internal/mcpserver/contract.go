package mcpserver

// NoteFormatContract describes the header format that links a Markdown note
// to its remote page. LLM consumers should preserve it when editing notes.
const NoteFormatContract = `# Ehwaz Linked Note Format

A note synchronized with a remote page carries a metadata header between two
` + "```" + `---` + "```" + ` fences at the very top of the file.

## Structure

` + "```" + `markdown
---
remote_page_id: 8a1b2c3d-....       # REQUIRED – remote page identity
last_edited_time: 2025-01-20T09:30:00Z  # sync watermark; managed by Ehwaz
imported_from: notion               # provenance marker
title: Human-readable title         # mirrors the remote page title
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **The header fences must be the first thing in the file** (no leading
   blank lines). A note without a header is treated as not linked and is
   never exported.
2. **Never edit ` + "`" + `last_edited_time` + "`" + ` by hand.** It records the last known
   remote state and is advanced only after a confirmed remote mutation.
   Changing it can cause a conflict to be missed or a needless overwrite.
3. **Keys are lowercase with underscores.** Extra fields mirrored from remote
   page properties follow the same alphabet.
4. **Values containing a newline, double quote, or colon are double-quoted**
   with internal quotes and newlines escaped.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.

## Supported body constructs

The body maps to the remote block kinds: paragraphs, ` + "`" + `#` + "`" + `/` + "`" + `##` + "`" + `/` + "`" + `###` + "`" + `
headings, ` + "`" + `-` + "`" + ` bullets, ` + "`" + `1.` + "`" + ` numbered items, ` + "`" + `- [ ]` + "`" + ` / ` + "`" + `- [x]` + "`" + `
checkboxes, ` + "`" + `>` + "`" + ` quotes, fenced code with a language tag, and ` + "`" + `---` + "`" + `
dividers. Nested items indent by four spaces. Anything else round-trips as a
paragraph.

## Example

` + "```" + `markdown
---
remote_page_id: 8a1b2c3d-9e0f-4a5b-8c7d-6e5f4a3b2c1d
last_edited_time: 2025-01-20T09:30:00Z
imported_from: notion
title: Weekly standup 2025-01-20
---

# Weekly standup 2025-01-20

- [ ] Alice to review the design doc
- [x] Bob updated the roadmap
` + "```" + `
`
