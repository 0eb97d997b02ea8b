package index

import (
	"log/slog"

	"github.com/starford/ehwaz/internal/checksum"
	"github.com/starford/ehwaz/internal/header"
	"github.com/starford/ehwaz/internal/storage"
)

// Rebuild walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted (headers are authoritative)
//   - files removed from disk are dropped from the index
func Rebuild(db DocumentIndex, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("rebuild: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexDocument(db, m.Path, data); err != nil {
			logger.Warn("rebuild: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("rebuild: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("rebuild: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("rebuild: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexDocument parses the document header and upserts the row. Documents
// without a header are still tracked (with empty page identity) so checksum
// comparisons stay cheap.
func IndexDocument(db DocumentIndex, path string, data []byte) error {
	row := DocumentRow{
		Path:     path,
		Checksum: checksum.Sum(data),
	}
	if h, _, ok := header.Parse(string(data)); ok {
		row.PageID, _ = h.Get(header.KeyPageID)
		row.Watermark, _ = h.Get(header.KeyWatermark)
		row.Title, _ = h.Get(header.KeyTitle)
	}
	return db.UpsertDocument(row)
}
