package httpapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/soundtrace/eras-api/internal/llmclient"
	"github.com/soundtrace/eras-api/internal/pipeline"
	"github.com/soundtrace/eras-api/internal/segment"
	"github.com/soundtrace/eras-api/internal/session"
)

type stubProvider struct{}

func (stubProvider) Chat(ctx context.Context, prompt string, opts llmclient.ChatOptions) (string, error) {
	return `{"title": "Test Era", "summary": "A summary long enough to clear the minimum length check imposed on responses."}`, nil
}

func testServer() *Server {
	store := session.NewStore(time.Hour)
	namer := llmclient.New(stubProvider{}, llmclient.ChatOptions{Model: "test", Timeout: time.Second})
	cfg := segment.Config{SimilarityThreshold: 0.3, MaxGapDays: 28, MinWeeks: 1, MinMs: 0}
	driver := pipeline.NewDriver(store, namer, cfg)

	return NewServer(Config{
		Addr:            ":0",
		AllowedOrigins:  []string{"*"},
		MaxUploadBytes:  1 << 20,
		ProgressCeiling: 5 * time.Minute,
	}, store, driver)
}

func multipartBody(t *testing.T, fieldName, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func historyJSON() []byte {
	return []byte(`[
		{"ts": "2024-01-01T10:00:00Z", "master_metadata_track_name": "Song A", "master_metadata_album_artist_name": "Artist A", "ms_played": 200000},
		{"ts": "2024-01-02T10:00:00Z", "master_metadata_track_name": "Song A", "master_metadata_album_artist_name": "Artist A", "ms_played": 200000},
		{"ts": "2024-01-09T10:00:00Z", "master_metadata_track_name": "Song A", "master_metadata_album_artist_name": "Artist A", "ms_played": 200000}
	]`)
}

func uploadSession(t *testing.T, s *Server) string {
	t.Helper()
	body, contentType := multipartBody(t, "file", "export.json", historyJSON())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return resp["session_id"]
}

func TestUploadReturnsSessionID(t *testing.T) {
	s := testServer()
	id := uploadSession(t, s)
	if id == "" {
		t.Fatal("expected non-empty session_id")
	}
}

func TestUploadMissingFileField(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadMalformedJSONIsBadRequest(t *testing.T) {
	s := testServer()
	body, contentType := multipartBody(t, "file", "export.json", []byte("not json"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestEraDetailBeforeCompleteReturns425(t *testing.T) {
	s := testServer()
	id := uploadSession(t, s)

	req := httptest.NewRequest(http.MethodGet, "/session/"+id+"/eras/1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooEarly {
		t.Fatalf("status = %d, want 425, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/session/does-not-exist/summary", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProcessThenReadEraDetail(t *testing.T) {
	s := testServer()
	id := uploadSession(t, s)

	req := httptest.NewRequest(http.MethodPost, "/process/"+id, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The pipeline runs on its own goroutine; poll briefly for completion.
	var sess *session.Session
	for i := 0; i < 50; i++ {
		got, ok := s.store.Get(id)
		if ok && (got.Progress.Stage == session.StageComplete || got.Progress.Stage == session.StageError) {
			sess = got
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sess == nil {
		t.Fatal("pipeline did not complete in time")
	}
	if sess.Progress.Stage != session.StageComplete {
		t.Fatalf("stage = %v, err = %v", sess.Progress.Stage, sess.Err)
	}

	req = httptest.NewRequest(http.MethodGet, "/session/"+id+"/eras", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("eras list status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var eras []eraSummaryJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &eras); err != nil {
		t.Fatalf("decoding eras list: %v", err)
	}
	if len(eras) == 0 {
		t.Fatal("expected at least one era")
	}

	req = httptest.NewRequest(http.MethodGet, "/session/"+id+"/eras/nonsense", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-integer era_id status = %d, want 400", rec.Code)
	}
}
