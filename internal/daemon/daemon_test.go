package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dsklean/dsklean/internal/auditlog"
	"github.com/dsklean/dsklean/internal/config"
	"github.com/dsklean/dsklean/internal/logger"
	"github.com/dsklean/dsklean/internal/trash"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateReady, "ready"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}

	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestParseSchedule_ValidDurations(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"1h", time.Hour},
		{"30m", 30 * time.Minute},
		{"6h", 6 * time.Hour},
		{"1m30s", 90 * time.Second},
		{"@every 1h", time.Hour},
		{"@every 30m", 30 * time.Minute},
	}

	for _, tc := range tests {
		got, err := parseSchedule(tc.input)
		if err != nil {
			t.Errorf("parseSchedule(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseSchedule(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, input := range []string{"", "invalid", "1x", "@every", "@every invalid"} {
		if _, err := parseSchedule(input); err == nil {
			t.Errorf("parseSchedule(%q) expected error", input)
		}
	}
}

func newTestAuditDB(t *testing.T) *auditlog.SQLiteSink {
	t.Helper()
	db, err := auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: t.TempDir() + "/audit.db"})
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func startTestDaemon(t *testing.T, cfg Config) *Daemon {
	t.Helper()
	cfg.HTTPAddr = ":0"
	d := New(logger.NewNop(), nil, cfg)
	if err := d.startHTTP(); err != nil {
		t.Fatalf("startHTTP: %v", err)
	}
	t.Cleanup(func() { d.httpServer.Close() })
	return d
}

func TestDaemon_HealthEndpoint(t *testing.T) {
	d := startTestDaemon(t, Config{})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health returned %d, want 200", w.Code)
	}
}

func TestDaemon_ReadyEndpoint_NotReadyBeforeState(t *testing.T) {
	d := startTestDaemon(t, Config{})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before StateReady returned %d, want 503", w.Code)
	}
}

func TestDaemon_ReadyEndpoint_ReadyAfterState(t *testing.T) {
	d := startTestDaemon(t, Config{})
	d.state.Store(int32(StateReady))
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready returned %d, want 200", w.Code)
	}
}

func TestDaemon_StatusEndpoint(t *testing.T) {
	d := startTestDaemon(t, Config{Schedule: "1h"})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status returned %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["schedule"] != "1h" {
		t.Errorf("schedule = %v, want 1h", body["schedule"])
	}
}

func TestDaemon_TriggerEndpoint_RejectsNonPOST(t *testing.T) {
	d := startTestDaemon(t, Config{})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trigger", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET trigger returned %d, want 405", w.Code)
	}
}

func TestDaemon_TriggerEndpoint_ConflictWhenRunning(t *testing.T) {
	block := make(chan struct{})
	d := startTestDaemon(t, Config{})
	d.runFunc = func(ctx context.Context) error {
		<-block
		return nil
	}
	go d.TriggerRun(context.Background())
	time.Sleep(20 * time.Millisecond)

	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	close(block)
	if w.Code != http.StatusConflict {
		t.Fatalf("concurrent trigger returned %d, want 409", w.Code)
	}
}

func TestDaemon_AuditQueryEndpoint_NotAvailable(t *testing.T) {
	d := startTestDaemon(t, Config{})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/query", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("audit query without db returned %d, want 404", w.Code)
	}
}

func TestDaemon_AuditQueryEndpoint_Success(t *testing.T) {
	d := startTestDaemon(t, Config{AuditDB: newTestAuditDB(t)})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/query?operation=clean&limit=10", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("audit query returned %d, want 200", w.Code)
	}
}

func TestDaemon_AuditQueryEndpoint_InvalidLimit(t *testing.T) {
	d := startTestDaemon(t, Config{AuditDB: newTestAuditDB(t)})
	for _, limit := range []string{"notanumber", "-1", "0"} {
		w := httptest.NewRecorder()
		d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/query?limit="+limit, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s returned %d, want 400", limit, w.Code)
		}
	}
}

func TestDaemon_AuditStatsEndpoint(t *testing.T) {
	d := startTestDaemon(t, Config{AuditDB: newTestAuditDB(t)})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("audit stats returned %d, want 200", w.Code)
	}
}

func TestDaemon_TrashEndpoints(t *testing.T) {
	tmpDir := t.TempDir()
	mgr, err := trash.New(trash.Config{TrashPath: tmpDir + "/.trash", SigningKey: []byte("0123456789abcdef0123456789abcdef"), AllowedRoots: []string{tmpDir}}, logger.NewNop())
	if err != nil {
		t.Fatalf("trash.New: %v", err)
	}

	d := startTestDaemon(t, Config{Trash: mgr})

	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trash", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("trash list returned %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/trash", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty-trash with no filter returned %d, want 400", w.Code)
	}
}

func TestDaemon_ConfigEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.Roots = []string{"/tmp"}
	d := startTestDaemon(t, Config{AppConfig: cfg})
	w := httptest.NewRecorder()
	d.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("config endpoint returned %d, want 200", w.Code)
	}
}

func TestDaemon_StopIsIdempotent(t *testing.T) {
	d := New(logger.NewNop(), nil, Config{HTTPAddr: ":0"})
	d.Stop()
	d.Stop() // must not panic on double-close
}

func TestDaemon_TriggerRun_ReportsLastRun(t *testing.T) {
	d := New(logger.NewNop(), func(ctx context.Context) error { return nil }, Config{HTTPAddr: ":0"})
	if err := d.TriggerRun(context.Background()); err != nil {
		t.Fatalf("TriggerRun: %v", err)
	}
	lastRun, count, lastErr := d.LastRun()
	if lastRun.IsZero() || count != 1 || lastErr != nil {
		t.Fatalf("unexpected LastRun state: %v %d %v", lastRun, count, lastErr)
	}
}
