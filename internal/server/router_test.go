package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allenguarnes/givetray/internal/history"
	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/manager"
	"github.com/allenguarnes/givetray/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires unix shell commands")
	}
}

func newTestRouter(t *testing.T, commands map[string]string) (*manager.Manager, http.Handler) {
	t.Helper()
	mgr := manager.New(nil)
	resolve := func(profile string) (supervisor.StartOptions, error) {
		return supervisor.StartOptions{Command: commands[profile]}, nil
	}
	r := NewRouter(mgr, resolve, nil, "")
	return mgr, r.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitStopped(t *testing.T, mgr *manager.Manager, profile string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Status(profile).State == supervisor.StateStopped {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("profile %s never stopped", profile)
}

func TestStartStopStatus(t *testing.T) {
	requireUnix(t)
	mgr, h := newTestRouter(t, map[string]string{"work": "sleep 5"})

	if w := do(t, h, http.MethodPost, "/start?profile=work"); w.Code != http.StatusOK {
		t.Fatalf("start code = %d body = %s", w.Code, w.Body)
	}
	if !mgr.IsRunning("work") {
		t.Fatal("profile not running after start")
	}

	w := do(t, h, http.MethodGet, "/status?profile=work")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var st supervisor.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != supervisor.StateRunning || st.PID <= 0 {
		t.Fatalf("status = %+v", st)
	}

	if w := do(t, h, http.MethodPost, "/stop?profile=work"); w.Code != http.StatusOK {
		t.Fatalf("stop code = %d body = %s", w.Code, w.Body)
	}
	waitStopped(t, mgr, "work")
}

func TestStartConflict(t *testing.T) {
	requireUnix(t)
	mgr, h := newTestRouter(t, map[string]string{"work": "sleep 5"})
	defer mgr.StopAll()

	if w := do(t, h, http.MethodPost, "/start?profile=work"); w.Code != http.StatusOK {
		t.Fatalf("first start code = %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/start?profile=work")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate start code = %d, want 409", w.Code)
	}
}

func TestProfileValidation(t *testing.T) {
	_, h := newTestRouter(t, nil)
	for _, target := range []string{
		"/start",
		"/start?profile=../etc",
		"/start?profile=has%20space",
		"/stop",
		"/logs",
	} {
		method := http.MethodPost
		if target == "/logs" {
			method = http.MethodGet
		}
		if w := do(t, h, method, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s %s code = %d, want 400", method, target, w.Code)
		}
	}
}

func TestLogsEndpoints(t *testing.T) {
	requireUnix(t)
	mgr, h := newTestRouter(t, map[string]string{"work": "echo over-http"})

	if w := do(t, h, http.MethodPost, "/start?profile=work"); w.Code != http.StatusOK {
		t.Fatalf("start code = %d", w.Code)
	}
	waitStopped(t, mgr, "work")

	w := do(t, h, http.MethodGet, "/logs?profile=work")
	if w.Code != http.StatusOK {
		t.Fatalf("logs code = %d", w.Code)
	}
	var lines []logring.Line
	if err := json.Unmarshal(w.Body.Bytes(), &lines); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	found := false
	for _, l := range lines {
		if l.Text == "over-http" && l.Stream == logring.StreamStdout {
			found = true
		}
	}
	if !found {
		t.Fatalf("lines = %+v", lines)
	}

	if w := do(t, h, http.MethodDelete, "/logs?profile=work"); w.Code != http.StatusOK {
		t.Fatalf("clear code = %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/logs?profile=work")
	if err := json.Unmarshal(w.Body.Bytes(), &lines); err != nil {
		t.Fatalf("decode cleared logs: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("lines after clear = %+v", lines)
	}
}

func TestStatusAllWhenNoProfileGiven(t *testing.T) {
	requireUnix(t)
	mgr, h := newTestRouter(t, map[string]string{"a": "echo 1", "b": "echo 2"})
	for _, p := range []string{"a", "b"} {
		if w := do(t, h, http.MethodPost, "/start?profile="+p); w.Code != http.StatusOK {
			t.Fatalf("start %s code = %d", p, w.Code)
		}
		waitStopped(t, mgr, p)
	}
	w := do(t, h, http.MethodGet, "/status")
	var sts []supervisor.Status
	if err := json.Unmarshal(w.Body.Bytes(), &sts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sts) != 2 {
		t.Fatalf("statuses = %+v", sts)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, h := newTestRouter(t, nil)
	if w := do(t, h, http.MethodGet, "/history?profile=work"); w.Code != http.StatusNotFound {
		t.Fatalf("history code = %d, want 404", w.Code)
	}
}

type stubStore struct {
	recs []history.Record
}

func (s *stubStore) RecordStart(_ context.Context, _ string, _ int, _ time.Time) error { return nil }
func (s *stubStore) RecordStop(_ context.Context, _ string, _ int, _, _ time.Time, _ string) error {
	return nil
}
func (s *stubStore) Recent(_ context.Context, _ string, _ int) ([]history.Record, error) {
	return s.recs, nil
}
func (s *stubStore) Close() error { return nil }

func TestHistoryEndpoint(t *testing.T) {
	mgr := manager.New(nil)
	store := &stubStore{recs: []history.Record{{Profile: "work", PID: 12}}}
	resolve := func(string) (supervisor.StartOptions, error) {
		return supervisor.StartOptions{}, nil
	}
	h := NewRouter(mgr, resolve, store, "").Handler()

	w := do(t, h, http.MethodGet, "/history?profile=work&limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("history code = %d body = %s", w.Code, w.Body)
	}
	var recs []history.Record
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].PID != 12 {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestRouter(t, nil)
	w := do(t, h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", w.Code)
	}
}

func TestBasePath(t *testing.T) {
	mgr := manager.New(nil)
	resolve := func(string) (supervisor.StartOptions, error) {
		return supervisor.StartOptions{}, nil
	}
	h := NewRouter(mgr, resolve, nil, "api/").Handler()
	if w := do(t, h, http.MethodGet, "/api/status"); w.Code != http.StatusOK {
		t.Fatalf("prefixed status code = %d", w.Code)
	}
}
