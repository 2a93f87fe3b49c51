package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	id "govengine/pkg/domain"
	platformaudit "govengine/pkg/platform/audit"
)

type stubReader struct {
	gotLimit    int
	gotInstance id.InstanceID
	views       []EventView
	report      platformaudit.VerifyReport
	err         error
}

func (r *stubReader) Recent(_ context.Context, limit int) ([]EventView, error) {
	r.gotLimit = limit
	return r.views, r.err
}

func (r *stubReader) ForInstance(_ context.Context, instanceID id.InstanceID, limit int) ([]EventView, error) {
	r.gotInstance = instanceID
	r.gotLimit = limit
	return r.views, r.err
}

func (r *stubReader) Verify(context.Context) (platformaudit.VerifyReport, error) {
	return r.report, r.err
}

func newAuditRouter(reader Reader) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	NewHandler(reader, logger).Register(r)
	return r
}

func TestRecentPassesLimit(t *testing.T) {
	reader := &stubReader{views: []EventView{{ID: "e1", Label: "Step closed"}}}
	router := newAuditRouter(reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?limit=25", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reader.gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", reader.gotLimit)
	}

	var resp struct {
		Events []EventView `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Label != "Step closed" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestRecentRejectsNonNumericLimit(t *testing.T) {
	router := newAuditRouter(&stubReader{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?limit=lots", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyReportsBreaksWithOK(t *testing.T) {
	reader := &stubReader{report: platformaudit.VerifyReport{
		Events:  4,
		Streams: 2,
		Breaks:  []platformaudit.Break{{Stream: "catalog", Seq: 3, Reason: "content hash mismatch"}},
	}}
	router := newAuditRouter(reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/verify", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		OK     bool                  `json:"ok"`
		Breaks []platformaudit.Break `json:"breaks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OK || len(resp.Breaks) != 1 {
		t.Fatalf("expected one break and ok=false, got %+v", resp)
	}
}

func TestVerifyStoreFailureIsInternal(t *testing.T) {
	router := newAuditRouter(&stubReader{err: errors.New("connection reset")})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/verify", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestInstanceHistoryFiltersByInstance(t *testing.T) {
	instanceID := id.NewInstanceID()
	reader := &stubReader{views: []EventView{{ID: "e2", EventType: "artifact_added", InstanceID: instanceID.String()}}}
	router := newAuditRouter(reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/instances/"+instanceID.String()+"?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if reader.gotInstance != instanceID || reader.gotLimit != 10 {
		t.Fatalf("expected instance %s with limit 10, got %s with %d", instanceID, reader.gotInstance, reader.gotLimit)
	}
	var resp struct {
		Events []EventView `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].ID != "e2" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestInstanceHistoryRejectsBadInput(t *testing.T) {
	router := newAuditRouter(&stubReader{})
	for _, path := range []string{
		"/admin/audit/instances/not-a-uuid",
		"/admin/audit/instances/" + id.NewInstanceID().String() + "?limit=ten",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}
