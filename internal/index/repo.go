package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string
	PageID    string
	Title     string
	Checksum  string
	Watermark string // last known remote last_edited_time, RFC 3339
	UpdatedAt time.Time
}

// UpsertDocument inserts or replaces a tracked document.
func (db *DB) UpsertDocument(d DocumentRow) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO documents (path, page_id, title, checksum, watermark, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			page_id    = excluded.page_id,
			title      = excluded.title,
			checksum   = excluded.checksum,
			watermark  = excluded.watermark,
			updated_at = excluded.updated_at
	`, d.Path, d.PageID, d.Title, d.Checksum, d.Watermark, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}
	return nil
}

// DeleteDocument removes a tracked document.
func (db *DB) DeleteDocument(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return nil
}

// GetByPath returns the tracked document at path, or nil when absent.
func (db *DB) GetByPath(path string) (*DocumentRow, error) {
	return db.get(`SELECT path, page_id, title, checksum, watermark, updated_at FROM documents WHERE path = ?`, path)
}

// GetByPageID returns the document claiming the remote identity, or nil.
func (db *DB) GetByPageID(pageID string) (*DocumentRow, error) {
	if pageID == "" {
		return nil, nil
	}
	return db.get(`SELECT path, page_id, title, checksum, watermark, updated_at FROM documents WHERE page_id = ?`, pageID)
}

func (db *DB) get(query string, arg any) (*DocumentRow, error) {
	var d DocumentRow
	err := db.conn.QueryRow(query, arg).Scan(&d.Path, &d.PageID, &d.Title, &d.Checksum, &d.Watermark, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// AllDocuments returns every tracked document.
func (db *DB) AllDocuments() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`SELECT path, page_id, title, checksum, watermark, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: all documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Path, &d.PageID, &d.Title, &d.Checksum, &d.Watermark, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every tracked document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
