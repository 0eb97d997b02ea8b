// Package models defines the domain types for Ehwaz.
package models

import "time"

// Document represents a Markdown file in the vault that may be linked to a
// remote page through its header.
type Document struct {
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	PageID    string    `json:"page_id,omitempty"`
	Watermark string    `json:"watermark,omitempty"` // last known remote last_edited_time, RFC 3339
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
