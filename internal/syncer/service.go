// Package syncer orchestrates synchronization between the vault and the
// remote store: per-document export with conflict detection, bulk import,
// batch reconciliation, and combined bidirectional runs. All remote calls go
// through the scheduled API view; the watermark in a document's header is
// advanced only after the corresponding remote mutation is confirmed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/blocks"
	"github.com/starford/ehwaz/internal/differ"
	"github.com/starford/ehwaz/internal/events"
	"github.com/starford/ehwaz/internal/header"
	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/notion"
	"github.com/starford/ehwaz/internal/storage"
)

// Top-level operation kinds guarded against concurrent re-entry.
const (
	opImport        = "import"
	opSync          = "sync"
	opBidirectional = "bidirectional"
)

// ExportStatus reports how a per-document export concluded.
type ExportStatus string

const (
	StatusExported   ExportStatus = "exported"    // remote mutated, watermark advanced
	StatusUnchanged  ExportStatus = "unchanged"   // nothing to do, zero mutating calls
	StatusUnlinked   ExportStatus = "unlinked"    // no usable header, silently skipped
	StatusBusy       ExportStatus = "busy"        // an export for this path is already in flight
	StatusKeptRemote ExportStatus = "kept-remote" // conflict resolved by pulling remote content
	StatusCancelled  ExportStatus = "cancelled"   // conflict resolved by aborting
)

// Report summarizes a bulk run. Dropped is set when the run was refused
// because another run of the same kind was already active.
type Report struct {
	Imported int
	Updated  int
	Skipped  int
	Failed   int
	Dropped  bool
}

// Deps are the collaborators a Service is composed from.
type Deps struct {
	Store    storage.Provider
	Index    index.DocumentIndex
	API      notion.API // the scheduled view
	Differ   *differ.Differ
	Resolver Resolver
	Broker   *events.Broker // optional
	Logger   *slog.Logger

	DatabaseID   string
	ImportFolder string
}

// Service is the sync orchestrator.
type Service struct {
	store    storage.Provider
	db       index.DocumentIndex
	api      notion.API
	differ   *differ.Differ
	resolver Resolver
	broker   *events.Broker
	log      *slog.Logger

	databaseID   string
	importFolder string

	mu      sync.Mutex
	active  map[string]struct{} // paths with an export in flight
	running map[string]struct{} // top-level operation kinds in flight
}

// New assembles a Service. A missing resolver defaults to Cancel, the
// conservative choice for unattended runs.
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Resolver == nil {
		d.Resolver = Policy(Cancel)
	}
	return &Service{
		store:        d.Store,
		db:           d.Index,
		api:          d.API,
		differ:       d.Differ,
		resolver:     d.Resolver,
		broker:       d.Broker,
		log:          d.Logger,
		databaseID:   d.DatabaseID,
		importFolder: d.ImportFolder,
		active:       make(map[string]struct{}),
		running:      make(map[string]struct{}),
	}
}

// ExportDocument runs the per-document export flow for path: read, check for
// a conflicting remote edit, apply the block diff, then advance the
// watermark. A second export for the same path while one is in flight is a
// no-op returning StatusBusy.
func (s *Service) ExportDocument(ctx context.Context, path string) (ExportStatus, error) {
	if !s.activate(path) {
		s.log.Debug("export already in flight", slog.String("path", path))
		return StatusBusy, nil
	}
	defer s.deactivate(path)

	data, err := s.store.Read(path)
	if err != nil {
		return "", fmt.Errorf("syncer: read %s: %w", path, err)
	}
	h, body, ok := header.Parse(string(data))
	if !ok || !h.Linked() {
		return StatusUnlinked, nil
	}
	pageID, _ := h.Get(header.KeyPageID)

	page, err := s.api.RetrievePage(ctx, pageID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("syncer: %s: remote page %s is gone: %w", path, pageID, err)
		}
		return "", fmt.Errorf("syncer: fetch page for %s: %w", path, err)
	}

	if wm, ok := h.Get(header.KeyWatermark); ok && wm != "" {
		local, perr := time.Parse(time.RFC3339, wm)
		if perr == nil && page.LastEditedTime.After(local) {
			res, err := s.resolve(ctx, Conflict{
				Path:           path,
				PageID:         pageID,
				LocalWatermark: local,
				RemoteEdited:   page.LastEditedTime,
			})
			if err != nil {
				return "", err
			}
			switch res {
			case KeepRemote:
				if err := s.pullRemote(ctx, path, h, page); err != nil {
					return "", err
				}
				return StatusKeptRemote, nil
			case Cancel:
				return StatusCancelled, nil
			}
			// KeepLocal proceeds, overwriting the remote edit.
		}
	}

	title, _ := h.Get(header.KeyTitle)
	if title == "" {
		title = docTitle(path)
	}

	res := s.differ.Compute(ctx, pageID, body, title)
	if !res.HasChanges {
		s.publishDoc(events.DocSkipped, path)
		return StatusUnchanged, nil
	}
	if err := s.differ.Apply(ctx, pageID, res); err != nil {
		return "", fmt.Errorf("syncer: apply diff for %s: %w", path, err)
	}

	// Re-fetch so the watermark reflects the state we just wrote.
	fresh, err := s.api.RetrievePage(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("syncer: refresh watermark for %s: %w", path, err)
	}
	h.Set(header.KeyWatermark, fresh.LastEditedTime.UTC().Format(time.RFC3339))
	out := []byte(header.Compose(h, body))
	if err := s.store.Write(path, out); err != nil {
		return "", fmt.Errorf("syncer: persist %s: %w", path, err)
	}
	if err := index.IndexDocument(s.db, path, out); err != nil {
		s.log.Warn("index update failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	s.publishDoc(events.DocExported, path)
	s.log.Info("exported", slog.String("path", path), slog.String("page_id", pageID))
	return StatusExported, nil
}

// ImportAll pulls every page of the configured database into the vault.
// Overlapping runs are dropped, not queued. Individual page failures are
// logged and counted, never fatal to the batch.
func (s *Service) ImportAll(ctx context.Context) (Report, error) {
	if !s.tryLock(opImport) {
		s.log.Warn("import already running, dropping request")
		return Report{Dropped: true}, nil
	}
	defer s.unlock(opImport)

	var rep Report
	cursor := ""
	for {
		list, err := s.api.QueryDatabase(ctx, s.databaseID, cursor)
		if err != nil {
			return rep, fmt.Errorf("syncer: query database: %w", err)
		}
		for i := range list.Results {
			page := &list.Results[i]
			outcome, err := s.importPage(ctx, page)
			switch {
			case err != nil:
				rep.Failed++
				s.log.Warn("import page failed",
					slog.String("page_id", page.ID), slog.String("error", err.Error()))
			case outcome == importCreated:
				rep.Imported++
			case outcome == importUpdated:
				rep.Updated++
			default:
				rep.Skipped++
			}
		}
		if !list.HasMore || list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}

	s.log.Info("import finished",
		slog.Int("imported", rep.Imported), slog.Int("updated", rep.Updated),
		slog.Int("skipped", rep.Skipped), slog.Int("failed", rep.Failed))
	if s.broker != nil {
		s.broker.PublishSyncDone(opImport, rep.Imported+rep.Updated+rep.Skipped, rep.Failed)
	}
	return rep, nil
}

type importOutcome int

const (
	importSkipped importOutcome = iota
	importCreated
	importUpdated
)

func (s *Service) importPage(ctx context.Context, page *notion.Page) (importOutcome, error) {
	existing, err := s.db.GetByPageID(page.ID)
	if err != nil {
		return importSkipped, err
	}

	if existing != nil {
		if existing.Watermark != "" {
			local, perr := time.Parse(time.RFC3339, existing.Watermark)
			if perr == nil && !page.LastEditedTime.After(local) {
				// Remote is not newer: normalize identity fields, leave the
				// body and the watermark alone.
				return importSkipped, s.normalizeHeader(existing.Path, page)
			}
		}
		data, err := s.renderPage(ctx, page)
		if err != nil {
			return importSkipped, err
		}
		if err := s.store.Write(existing.Path, data); err != nil {
			return importSkipped, err
		}
		if err := index.IndexDocument(s.db, existing.Path, data); err != nil {
			s.log.Warn("index update failed", slog.String("path", existing.Path), slog.String("error", err.Error()))
		}
		s.publishDoc(events.DocImported, existing.Path)
		return importUpdated, nil
	}

	data, err := s.renderPage(ctx, page)
	if err != nil {
		return importSkipped, err
	}
	path := s.generatePath(page)
	if err := s.store.Create(path, data); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			s.log.Debug("import: path occupied, skipping",
				slog.String("path", path), slog.String("page_id", page.ID))
			return importSkipped, nil
		}
		return importSkipped, err
	}
	if err := index.IndexDocument(s.db, path, data); err != nil {
		s.log.Warn("index update failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.publishDoc(events.DocImported, path)
	return importCreated, nil
}

// SyncAll exports every tracked document whose local state looks newer than
// its watermark. The mtime test is an optimization to skip remote round
// trips; ExportDocument re-checks for conflicts regardless.
func (s *Service) SyncAll(ctx context.Context) (Report, error) {
	if !s.tryLock(opSync) {
		s.log.Warn("sync already running, dropping request")
		return Report{Dropped: true}, nil
	}
	defer s.unlock(opSync)

	docs, err := s.db.AllDocuments()
	if err != nil {
		return Report{}, fmt.Errorf("syncer: list tracked documents: %w", err)
	}

	var rep Report
	for _, doc := range docs {
		if doc.PageID == "" {
			continue
		}
		if !s.localNewer(doc) {
			rep.Skipped++
			continue
		}
		status, err := s.ExportDocument(ctx, doc.Path)
		if err != nil {
			rep.Failed++
			s.log.Warn("sync export failed",
				slog.String("path", doc.Path), slog.String("error", err.Error()))
			continue
		}
		if status == StatusExported {
			rep.Updated++
		} else {
			rep.Skipped++
		}
	}

	s.log.Info("sync finished",
		slog.Int("updated", rep.Updated), slog.Int("skipped", rep.Skipped), slog.Int("failed", rep.Failed))
	if s.broker != nil {
		s.broker.PublishSyncDone(opSync, rep.Updated+rep.Skipped, rep.Failed)
	}
	return rep, nil
}

// RunBidirectional imports first, then sweeps exports.
func (s *Service) RunBidirectional(ctx context.Context) (Report, Report, error) {
	if !s.tryLock(opBidirectional) {
		s.log.Warn("bidirectional sync already running, dropping request")
		return Report{Dropped: true}, Report{Dropped: true}, nil
	}
	defer s.unlock(opBidirectional)

	imp, err := s.ImportAll(ctx)
	if err != nil {
		return imp, Report{}, err
	}
	exp, err := s.SyncAll(ctx)
	return imp, exp, err
}

// localNewer reports whether a document's file looks edited since its last
// successful sync. Missing or unparseable watermarks count as "newer" so the
// document gets a real conflict check.
func (s *Service) localNewer(doc index.DocumentRow) bool {
	if doc.Watermark == "" {
		return true
	}
	wm, err := time.Parse(time.RFC3339, doc.Watermark)
	if err != nil {
		return true
	}
	mtime, err := s.store.Stat(doc.Path)
	if err != nil {
		return false
	}
	return mtime.After(wm)
}

// pullRemote overwrites the local document with freshly rendered remote
// content, used by the keep-remote conflict resolution.
func (s *Service) pullRemote(ctx context.Context, path string, h *header.Header, page *notion.Page) error {
	tree, err := notion.FetchBlockTree(ctx, s.api, page.ID)
	if err != nil {
		return fmt.Errorf("syncer: fetch remote content for %s: %w", path, err)
	}
	applyPageHeader(h, page)
	out := []byte(header.Compose(h, blocks.Encode(tree)))
	if err := s.store.Write(path, out); err != nil {
		return fmt.Errorf("syncer: persist %s: %w", path, err)
	}
	if err := index.IndexDocument(s.db, path, out); err != nil {
		s.log.Warn("index update failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.publishDoc(events.DocImported, path)
	return nil
}

// renderPage renders a remote page to full document text: header + body.
func (s *Service) renderPage(ctx context.Context, page *notion.Page) ([]byte, error) {
	tree, err := notion.FetchBlockTree(ctx, s.api, page.ID)
	if err != nil {
		return nil, err
	}
	h := header.New()
	applyPageHeader(h, page)
	return []byte(header.Compose(h, blocks.Encode(tree))), nil
}

// normalizeHeader refreshes identity fields in an existing document's header
// without touching its body. The watermark is deliberately not rewound when
// the remote copy is older.
func (s *Service) normalizeHeader(path string, page *notion.Page) error {
	data, err := s.store.Read(path)
	if err != nil {
		return err
	}
	h, body, ok := header.Parse(string(data))
	if !ok {
		return nil
	}
	h.Set(header.KeyPageID, page.ID)
	h.Set(header.KeyImportedFrom, header.ImportedFrom)
	if t := page.Title(); t != "" {
		h.Set(header.KeyTitle, t)
	}
	out := header.Compose(h, body)
	if out == string(data) {
		return nil
	}
	if err := s.store.Write(path, []byte(out)); err != nil {
		return err
	}
	return index.IndexDocument(s.db, path, []byte(out))
}

// applyPageHeader fills the required fields plus a sanitized mirror of the
// page's other representable properties, in stable key order.
func applyPageHeader(h *header.Header, page *notion.Page) {
	h.Set(header.KeyPageID, page.ID)
	h.Set(header.KeyWatermark, page.LastEditedTime.UTC().Format(time.RFC3339))
	h.Set(header.KeyImportedFrom, header.ImportedFrom)
	h.Set(header.KeyTitle, page.Title())

	names := make([]string, 0, len(page.Properties))
	for name := range page.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := page.Properties[name]
		if prop.Type == "title" {
			continue
		}
		if v := prop.Text(); v != "" {
			h.Set(header.SanitizeKey(name), v)
		}
	}
}

func (s *Service) generatePath(page *notion.Page) string {
	name := strings.TrimSpace(page.Title())
	if name == "" {
		id := page.ID
		if len(id) > 8 {
			id = id[:8]
		}
		name = "untitled-" + id
	}
	repl := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "#", "-", "?", "-", "*", "-", `"`, "'")
	return filepath.Join(s.importFolder, repl.Replace(name)+".md")
}

func (s *Service) resolve(ctx context.Context, c Conflict) (Resolution, error) {
	res, err := s.resolver.Resolve(ctx, c)
	if err != nil {
		return Cancel, fmt.Errorf("syncer: resolve conflict for %s: %w", c.Path, err)
	}
	s.log.Info("conflict resolved",
		slog.String("path", c.Path), slog.String("resolution", string(res)))
	if s.broker != nil {
		s.broker.PublishConflict(c.Path, string(res))
	}
	return res, nil
}

func (s *Service) publishDoc(kind, path string) {
	if s.broker != nil {
		s.broker.PublishDocumentEvent(kind, path)
	}
}

func (s *Service) activate(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[path]; busy {
		return false
	}
	s.active[path] = struct{}{}
	return true
}

func (s *Service) deactivate(path string) {
	s.mu.Lock()
	delete(s.active, path)
	s.mu.Unlock()
}

func (s *Service) tryLock(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[kind]; busy {
		return false
	}
	s.running[kind] = struct{}{}
	return true
}

func (s *Service) unlock(kind string) {
	s.mu.Lock()
	delete(s.running, kind)
	s.mu.Unlock()
}

func docTitle(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}
