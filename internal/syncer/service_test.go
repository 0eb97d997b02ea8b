package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/ehwaz/internal/blocks"
	"github.com/starford/ehwaz/internal/differ"
	"github.com/starford/ehwaz/internal/header"
	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/notion"
	"github.com/starford/ehwaz/internal/storage"
	"github.com/starford/ehwaz/internal/testutil"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func newService(t *testing.T, api notion.API, resolver Resolver) (*Service, storage.Provider, index.DocumentIndex) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := New(Deps{
		Store:        store,
		Index:        db,
		API:          api,
		Differ:       differ.New(api, log),
		Resolver:     resolver,
		Logger:       log,
		DatabaseID:   "db-1",
		ImportFolder: "inbox",
	})
	return svc, store, db
}

func linkedDoc(pageID, title, watermark, body string) string {
	h := header.New()
	h.Set(header.KeyPageID, pageID)
	h.Set(header.KeyWatermark, watermark)
	h.Set(header.KeyImportedFrom, header.ImportedFrom)
	h.Set(header.KeyTitle, title)
	return header.Compose(h, body)
}

func wireBlock(id string, kind models.Kind, text string) notion.Block {
	b := notion.FromModel(models.TextBlock(kind, text))
	b.ID = id
	return b
}

func TestExportDocument_AdvancesWatermarkAfterApply(t *testing.T) {
	var retrieves int
	var deletes, appends []string
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			retrieves++
			// The post-mutation refresh observes the new edit time.
			if retrieves >= 3 {
				return testutil.StaticPage(id, "Doc", t1), nil
			}
			return testutil.StaticPage(id, "Doc", t0), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "old")}}, nil
		},
		DeleteBlockFn: func(ctx context.Context, id string) error {
			deletes = append(deletes, id)
			return nil
		},
		AppendChildBlocksFn: func(ctx context.Context, blockID string, bs []notion.Block) error {
			for range bs {
				appends = append(appends, blockID)
			}
			return nil
		},
	}
	svc, store, db := newService(t, api, Policy(Cancel))

	doc := linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "new")
	if err := store.Write("a.md", []byte(doc)); err != nil {
		t.Fatal(err)
	}

	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusExported {
		t.Fatalf("status = %s", status)
	}
	if len(deletes) != 1 || deletes[0] != "b0" || len(appends) != 1 {
		t.Errorf("deletes = %v, appends = %v", deletes, appends)
	}

	data, err := store.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	h, body, ok := header.Parse(string(data))
	if !ok {
		t.Fatal("header lost on export")
	}
	if wm, _ := h.Get(header.KeyWatermark); wm != t1.Format(time.RFC3339) {
		t.Errorf("watermark = %s, want %s", wm, t1.Format(time.RFC3339))
	}
	if strings.TrimSpace(body) != "new" {
		t.Errorf("body = %q", body)
	}

	row, err := db.GetByPath("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.Watermark != t1.Format(time.RFC3339) {
		t.Errorf("index row = %+v", row)
	}
}

func TestExportDocument_UnchangedIssuesNoMutations(t *testing.T) {
	// The fake has no mutating stubs: any delete/append/title call fails.
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			return testutil.StaticPage(id, "Doc", t0), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "same")}}, nil
		},
	}
	svc, store, _ := newService(t, api, Policy(Cancel))

	doc := linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "same")
	_ = store.Write("a.md", []byte(doc))

	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusUnchanged {
		t.Fatalf("status = %s", status)
	}

	// Watermark must not move without a confirmed remote mutation.
	data, _ := store.Read("a.md")
	h, _, _ := header.Parse(string(data))
	if wm, _ := h.Get(header.KeyWatermark); wm != t0.Format(time.RFC3339) {
		t.Errorf("watermark moved to %s", wm)
	}
}

func TestExportDocument_UnlinkedSkipped(t *testing.T) {
	svc, store, _ := newService(t, &testutil.FakeAPI{}, Policy(Cancel))
	_ = store.Write("plain.md", []byte("just text\n"))

	status, err := svc.ExportDocument(context.Background(), "plain.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusUnlinked {
		t.Fatalf("status = %s", status)
	}
}

func TestExportDocument_ConflictCancelHaltsBeforeMutation(t *testing.T) {
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			return testutil.StaticPage(id, "Doc", t1), nil // remote newer
		},
	}
	svc, store, _ := newService(t, api, Policy(Cancel))

	doc := linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "local edit")
	_ = store.Write("a.md", []byte(doc))

	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusCancelled {
		t.Fatalf("status = %s", status)
	}

	// Local content untouched.
	data, _ := store.Read("a.md")
	if string(data) != doc {
		t.Error("document mutated on cancel")
	}
}

func TestExportDocument_ConflictKeepRemoteOverwritesLocal(t *testing.T) {
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			return testutil.StaticPage(id, "Doc", t1), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "remote wins")}}, nil
		},
	}
	svc, store, db := newService(t, api, Policy(KeepRemote))

	doc := linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "local edit")
	_ = store.Write("a.md", []byte(doc))

	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusKeptRemote {
		t.Fatalf("status = %s", status)
	}

	data, _ := store.Read("a.md")
	h, body, ok := header.Parse(string(data))
	if !ok {
		t.Fatal("header lost")
	}
	if !strings.Contains(body, "remote wins") {
		t.Errorf("body = %q", body)
	}
	if wm, _ := h.Get(header.KeyWatermark); wm != t1.Format(time.RFC3339) {
		t.Errorf("watermark = %s", wm)
	}
	row, _ := db.GetByPath("a.md")
	if row == nil || row.Watermark != t1.Format(time.RFC3339) {
		t.Errorf("index row = %+v", row)
	}
}

func TestExportDocument_ConflictKeepLocalProceeds(t *testing.T) {
	var retrieves, deletes, appends int
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			retrieves++
			return testutil.StaticPage(id, "Doc", t1), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "remote edit")}}, nil
		},
		DeleteBlockFn: func(ctx context.Context, id string) error {
			deletes++
			return nil
		},
		AppendChildBlocksFn: func(ctx context.Context, blockID string, bs []notion.Block) error {
			appends += len(bs)
			return nil
		},
	}
	svc, store, _ := newService(t, api, Policy(KeepLocal))

	doc := linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "local edit")
	_ = store.Write("a.md", []byte(doc))

	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusExported {
		t.Fatalf("status = %s", status)
	}
	if deletes != 1 || appends != 1 {
		t.Errorf("deletes = %d, appends = %d", deletes, appends)
	}
}

func TestExportDocument_BusyPath(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			once.Do(func() { close(entered) })
			<-release
			return testutil.StaticPage(id, "Doc", t0), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "same")}}, nil
		},
	}
	svc, store, _ := newService(t, api, Policy(Cancel))
	_ = store.Write("a.md", []byte(linkedDoc("page-1", "Doc", t0.Format(time.RFC3339), "same")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.ExportDocument(context.Background(), "a.md")
	}()

	<-entered
	status, err := svc.ExportDocument(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusBusy {
		t.Fatalf("status = %s", status)
	}
	close(release)
	<-done
}

func TestImportAll_EndToEnd(t *testing.T) {
	page := testutil.StaticPage("page-9", "Sample", t0)
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			if id != "db-1" {
				return nil, fmt.Errorf("unexpected database %s", id)
			}
			return &notion.PageList{Results: []notion.Page{*page}}, nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "hello")}}, nil
		},
	}
	svc, store, db := newService(t, api, Policy(Cancel))

	rep, err := svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	data, err := store.Read("inbox/Sample.md")
	if err != nil {
		t.Fatal(err)
	}
	h, body, ok := header.Parse(string(data))
	if !ok {
		t.Fatal("no header on imported document")
	}
	if id, _ := h.Get(header.KeyPageID); id != "page-9" {
		t.Errorf("page id = %s", id)
	}
	if from, _ := h.Get(header.KeyImportedFrom); from != "notion" {
		t.Errorf("imported_from = %s", from)
	}
	if title, _ := h.Get(header.KeyTitle); title != "Sample" {
		t.Errorf("title = %s", title)
	}
	decoded := blocks.Decode(body)
	if len(decoded) != 1 || decoded[0].Kind != models.KindParagraph || decoded[0].PlainText() != "hello" {
		t.Errorf("decoded body = %+v", decoded)
	}

	row, _ := db.GetByPageID("page-9")
	if row == nil || row.Path != "inbox/Sample.md" {
		t.Errorf("index row = %+v", row)
	}

	// Re-running with an unchanged remote is an idempotent skip.
	rep, err = svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 0 || rep.Updated != 0 || rep.Skipped != 1 {
		t.Fatalf("second report = %+v", rep)
	}
	after, _ := store.Read("inbox/Sample.md")
	if string(after) != string(data) {
		t.Error("skip rewrote the document")
	}
}

func TestImportAll_NewerRemoteOverwritesLocal(t *testing.T) {
	body := "v1"
	page := testutil.StaticPage("page-9", "Sample", t1)
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			return &notion.PageList{Results: []notion.Page{*page}}, nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, body)}}, nil
		},
	}
	svc, store, db := newService(t, api, Policy(Cancel))

	// Local copy from an older sync.
	local := linkedDoc("page-9", "Sample", t0.Format(time.RFC3339), "stale")
	_ = store.Write("inbox/Sample.md", []byte(local))
	if err := index.IndexDocument(db, "inbox/Sample.md", []byte(local)); err != nil {
		t.Fatal(err)
	}

	body = "fresh"
	rep, err := svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Updated != 1 {
		t.Fatalf("report = %+v", rep)
	}
	data, _ := store.Read("inbox/Sample.md")
	if !strings.Contains(string(data), "fresh") {
		t.Errorf("body not replaced: %q", data)
	}
	h, _, _ := header.Parse(string(data))
	if wm, _ := h.Get(header.KeyWatermark); wm != t1.Format(time.RFC3339) {
		t.Errorf("watermark = %s", wm)
	}
}

func TestImportAll_PathCollisionIsIdempotentNoop(t *testing.T) {
	page := testutil.StaticPage("page-9", "Sample", t0)
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			return &notion.PageList{Results: []notion.Page{*page}}, nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "hello")}}, nil
		},
	}
	svc, store, _ := newService(t, api, Policy(Cancel))

	// Unrelated file already occupies the generated path; no index claim.
	_ = store.Write("inbox/Sample.md", []byte("mine\n"))

	rep, err := svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 0 || rep.Failed != 0 || rep.Skipped != 1 {
		t.Fatalf("report = %+v", rep)
	}
	data, _ := store.Read("inbox/Sample.md")
	if string(data) != "mine\n" {
		t.Errorf("existing file clobbered: %q", data)
	}
}

func TestImportAll_Pagination(t *testing.T) {
	pages := []notion.Page{
		*testutil.StaticPage("p1", "One", t0),
		*testutil.StaticPage("p2", "Two", t0),
	}
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			if cursor == "" {
				return &notion.PageList{Results: pages[:1], HasMore: true, NextCursor: "c1"}, nil
			}
			return &notion.PageList{Results: pages[1:]}, nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{}, nil
		},
	}
	svc, store, _ := newService(t, api, Policy(Cancel))

	rep, err := svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if !store.Exists("inbox/One.md") || !store.Exists("inbox/Two.md") {
		t.Error("expected both pages imported")
	}
}

func TestImportAll_OverlappingRunDropped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			once.Do(func() { close(entered) })
			<-release
			return &notion.PageList{}, nil
		},
	}
	svc, _, _ := newService(t, api, Policy(Cancel))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.ImportAll(context.Background())
	}()

	<-entered
	rep, err := svc.ImportAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Dropped {
		t.Error("overlapping import not dropped")
	}
	close(release)
	<-done
}

func TestSyncAll_SelectsOnlyLocallyNewer(t *testing.T) {
	var pageFetches int
	api := &testutil.FakeAPI{
		RetrievePageFn: func(ctx context.Context, id string) (*notion.Page, error) {
			pageFetches++
			return testutil.StaticPage(id, "B", t0), nil
		},
		ListChildBlocksFn: func(ctx context.Context, blockID, cursor string) (*notion.BlockList, error) {
			return &notion.BlockList{Results: []notion.Block{wireBlock("b0", models.KindParagraph, "same")}}, nil
		},
	}
	svc, store, db := newService(t, api, Policy(Cancel))

	// a.md: watermark in the future relative to its mtime — not a candidate.
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_ = store.Write("a.md", []byte(linkedDoc("page-a", "A", future, "whatever")))
	dataA, _ := store.Read("a.md")
	_ = index.IndexDocument(db, "a.md", dataA)

	// b.md: stale watermark — exported (and found unchanged).
	_ = store.Write("b.md", []byte(linkedDoc("page-b", "B", t0.Format(time.RFC3339), "same")))
	dataB, _ := store.Read("b.md")
	_ = index.IndexDocument(db, "b.md", dataB)

	rep, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Updated != 0 || rep.Skipped != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	// Only b.md reaches the remote: one conflict check + one differ fetch.
	if pageFetches != 2 {
		t.Errorf("page fetches = %d, want 2", pageFetches)
	}
}

func TestRunBidirectional_ImportThenExport(t *testing.T) {
	var order []string
	api := &testutil.FakeAPI{
		QueryDatabaseFn: func(ctx context.Context, id, cursor string) (*notion.PageList, error) {
			order = append(order, "import")
			return &notion.PageList{}, nil
		},
	}
	svc, _, _ := newService(t, api, Policy(Cancel))

	imp, exp, err := svc.RunBidirectional(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if imp.Dropped || exp.Dropped {
		t.Fatalf("reports = %+v %+v", imp, exp)
	}
	if len(order) != 1 || order[0] != "import" {
		t.Errorf("order = %v", order)
	}
}

func TestGeneratePath(t *testing.T) {
	svc, _, _ := newService(t, &testutil.FakeAPI{}, Policy(Cancel))

	got := svc.generatePath(testutil.StaticPage("p", "a/b: c", t0))
	if got != "inbox/a-b- c.md" {
		t.Errorf("path = %q", got)
	}
	got = svc.generatePath(testutil.StaticPage("0123456789abcdef", "", t0))
	if got != "inbox/untitled-01234567.md" {
		t.Errorf("path = %q", got)
	}
}
