package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/rzbill/sift/internal/config"
	"github.com/rzbill/sift/internal/runtime"
	logpkg "github.com/rzbill/sift/pkg/log"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "always"
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logpkg.NewNop()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt, logpkg.NewNop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}

	_ = do(t, s, http.MethodPost, "/v1/documents", `{"documents":[{"k":1}]}`)
	_ = do(t, s, http.MethodPost, "/v1/deletes", `{"field":"k","value":1}`)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	var h healthResp
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Status != "ok" || h.Opstamp != 2 || h.PendingDeletes != 1 {
		t.Fatalf("health: %+v", h)
	}
}

func TestAddDeleteCommit(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/documents", `{"documents":[{"lang":"go","n":1},{"lang":"zig","n":2},{"lang":"go","n":3}]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("add status: %d %s", w.Code, w.Body)
	}
	var stamps stampResp
	if err := json.Unmarshal(w.Body.Bytes(), &stamps); err != nil || len(stamps.Opstamps) != 3 {
		t.Fatalf("add response: %s", w.Body)
	}

	if w := do(t, s, http.MethodPost, "/v1/deletes", `{"query":"doc.n > 2"}`); w.Code != http.StatusAccepted {
		t.Fatalf("delete query status: %d %s", w.Code, w.Body)
	}
	if w := do(t, s, http.MethodPost, "/v1/deletes", `{"field":"lang","value":"zig"}`); w.Code != http.StatusAccepted {
		t.Fatalf("delete term status: %d %s", w.Code, w.Body)
	}

	w = do(t, s, http.MethodPost, "/v1/commit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("commit status: %d %s", w.Code, w.Body)
	}
	var cr commitResp
	if err := json.Unmarshal(w.Body.Bytes(), &cr); err != nil {
		t.Fatalf("decode commit: %v", err)
	}
	if len(cr.Touched) != 1 {
		t.Fatalf("touched: %v", cr.Touched)
	}

	w = do(t, s, http.MethodGet, "/v1/segments", "")
	var body struct {
		Segments []struct {
			MaxDoc     int `json:"maxDoc"`
			NumDeleted int `json:"numDeleted"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode segments: %v", err)
	}
	if len(body.Segments) != 1 || body.Segments[0].MaxDoc != 3 || body.Segments[0].NumDeleted != 2 {
		t.Fatalf("segments: %s", w.Body)
	}
}

func TestDeleteValidation(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{`{}`, `{"query":"doc.n >"}`, `{"query":"true","field":"a"}`, `not json`} {
		if w := do(t, s, http.MethodPost, "/v1/deletes", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", body, w.Code)
		}
	}
	if w := do(t, s, http.MethodGet, "/v1/deletes", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_ = do(t, s, http.MethodPost, "/v1/deletes", `{"field":"a","value":1}`)
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sift_deletequeue_pushed_total 1") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body)
	}
}
