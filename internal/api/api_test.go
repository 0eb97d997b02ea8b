package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/scheduler"
	"github.com/starford/ehwaz/internal/syncer"
	"github.com/starford/ehwaz/internal/testutil"
)

type stubSync struct {
	importRep syncer.Report
	syncRep   syncer.Report
	exportSt  syncer.ExportStatus
	exportErr error
	exported  []string
}

func (s *stubSync) ImportAll(context.Context) (syncer.Report, error) { return s.importRep, nil }
func (s *stubSync) SyncAll(context.Context) (syncer.Report, error)  { return s.syncRep, nil }
func (s *stubSync) RunBidirectional(context.Context) (syncer.Report, syncer.Report, error) {
	return s.importRep, s.syncRep, nil
}
func (s *stubSync) ExportDocument(_ context.Context, path string) (syncer.ExportStatus, error) {
	s.exported = append(s.exported, path)
	return s.exportSt, s.exportErr
}

func newTestServer(t *testing.T, sync SyncService, authEnabled bool, token string) (*httptest.Server, index.DocumentIndex) {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestVault(t)
	h := NewHandler(sync, db, store, func() scheduler.Status {
		return scheduler.Status{QueueLength: 3, Tokens: 1.5, ConsecutiveThrottles: 2}
	})
	srv := httptest.NewServer(NewRouter(h, authEnabled, token, nil))
	t.Cleanup(srv.Close)
	return srv, db
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, &stubSync{}, true, "secret")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, &stubSync{}, false, "")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["queue_length"].(float64) != 3 {
		t.Errorf("queue_length = %v", body["queue_length"])
	}
	if body["tokens"].(float64) != 1.5 {
		t.Errorf("tokens = %v", body["tokens"])
	}
	if body["consecutive_throttles"].(float64) != 2 {
		t.Errorf("consecutive_throttles = %v", body["consecutive_throttles"])
	}
}

func TestImportEndpoint(t *testing.T) {
	stub := &stubSync{importRep: syncer.Report{Imported: 4, Skipped: 1}}
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/import", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rep syncer.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 4 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestImportEndpoint_DroppedIsConflict(t *testing.T) {
	stub := &stubSync{importRep: syncer.Report{Dropped: true}}
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/import", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	stub := &stubSync{exportSt: syncer.StatusExported}
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/export/topics/note.md", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(stub.exported) != 1 || stub.exported[0] != "topics/note.md" {
		t.Errorf("exported = %v", stub.exported)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "exported" {
		t.Errorf("body = %v", body)
	}
}

func TestExportEndpoint_RemoteGone(t *testing.T) {
	stub := &stubSync{exportErr: apperr.ErrNotFound}
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/export/a.md", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExportEndpoint_WrappedUnauthorized(t *testing.T) {
	stub := &stubSync{exportErr: errors.New("wrapped: " + apperr.ErrUnauthorized.Error())}
	// A non-sentinel error maps to 500.
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/export/a.md", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestExportEndpoint_BusyIsConflict(t *testing.T) {
	stub := &stubSync{exportSt: syncer.StatusBusy}
	srv, _ := newTestServer(t, stub, false, "")

	resp, err := http.Post(srv.URL+"/export/a.md", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestListDocuments(t *testing.T) {
	srv, db := newTestServer(t, &stubSync{}, false, "")
	_ = db.UpsertDocument(index.DocumentRow{Path: "a.md", PageID: "p1", Title: "A"})

	resp, err := http.Get(srv.URL + "/documents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Documents []map[string]any `json:"documents"`
		Total     int              `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Documents[0]["page_id"] != "p1" {
		t.Errorf("body = %+v", body)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubSync{}, false, "")

	resp, err := http.Get(srv.URL + "/documents/missing.md")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if !strings.Contains(body["error"], "not found") {
		t.Errorf("body = %v", body)
	}
}
