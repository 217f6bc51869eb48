// Package daemon runs dsklean as a long-running process: a scheduled
// (or bypass-triggered) scan→synthesize→clean pipeline, fronted by an
// HTTP API for health checks, manual triggers, and inspecting audit/trash
// state.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dsklean/dsklean/internal/auditlog"
	"github.com/dsklean/dsklean/internal/auth"
	"github.com/dsklean/dsklean/internal/config"
	"github.com/dsklean/dsklean/internal/logger"
	"github.com/dsklean/dsklean/internal/pidfile"
	"github.com/dsklean/dsklean/internal/trash"
	"github.com/dsklean/dsklean/internal/web"
)

// State represents the current daemon state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateStopping
	StateStopped
)

const (
	stateStrStarting = "starting"
	stateStrReady    = "ready"
	stateStrRunning  = "running"
	stateStrStopping = "stopping"
	stateStrStopped  = "stopped"
	stateStrUnknown  = "unknown"
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return stateStrStarting
	case StateReady:
		return stateStrReady
	case StateRunning:
		return stateStrRunning
	case StateStopping:
		return stateStrStopping
	case StateStopped:
		return stateStrStopped
	default:
		return stateStrUnknown
	}
}

// diskCriticalFraction is the used-space fraction above which the
// readiness probe refuses to schedule another run: a near-full volume
// makes trash staging and backup provisioning unreliable.
const diskCriticalFraction = 0.95

// DiskUsage summarizes space occupancy for one scan root's filesystem.
type DiskUsage struct {
	Root         string
	TotalBytes   uint64
	UsedBytes    uint64
	UsedFraction float64
}

// RunFunc is the function called on each scheduled or triggered run. It
// wraps a full scan→synthesize→clean pipeline pass.
type RunFunc func(ctx context.Context) error

// Daemon manages the lifecycle of a long-running dsklean process.
type Daemon struct {
	log            logger.Logger
	runFunc        RunFunc
	schedule       string
	httpAddr       string
	triggerTimeout time.Duration
	pidFilePath    string
	runWaitTimeout time.Duration

	cfg     *config.Config
	auditDB *auditlog.SQLiteSink
	trash   *trash.Manager

	authMiddleware *auth.Middleware
	rbacMiddleware *auth.RBACMiddleware

	state      atomic.Int32
	running    atomic.Bool
	lastRun    time.Time
	lastErr    error
	runCount   int64
	mu         sync.RWMutex
	stopCh     chan struct{}
	stopOnce   sync.Once
	auditOnce  sync.Once
	runsWG     sync.WaitGroup
	httpServer *http.Server
	pidFile    *pidfile.PIDFile
}

// Config holds daemon configuration.
type Config struct {
	Schedule       string
	HTTPAddr       string
	TriggerTimeout time.Duration
	PIDFile        string
	RunWaitTimeout time.Duration

	AppConfig *config.Config
	AuditDB   *auditlog.SQLiteSink
	Trash     *trash.Manager

	AuthMiddleware *auth.Middleware
	RBACMiddleware *auth.RBACMiddleware
}

// New creates a new daemon instance.
func New(log logger.Logger, runFunc RunFunc, cfg Config) *Daemon {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 30 * time.Minute
	}
	if cfg.RunWaitTimeout <= 0 {
		cfg.RunWaitTimeout = 10 * time.Second
	}

	d := &Daemon{
		log:            log,
		runFunc:        runFunc,
		schedule:       cfg.Schedule,
		httpAddr:       cfg.HTTPAddr,
		triggerTimeout: cfg.TriggerTimeout,
		runWaitTimeout: cfg.RunWaitTimeout,
		pidFilePath:    cfg.PIDFile,
		cfg:            cfg.AppConfig,
		auditDB:        cfg.AuditDB,
		trash:          cfg.Trash,
		authMiddleware: cfg.AuthMiddleware,
		rbacMiddleware: cfg.RBACMiddleware,
		stopCh:         make(chan struct{}),
	}
	d.state.Store(int32(StateStarting))
	return d
}

// Run starts the daemon and blocks until shutdown. It handles SIGINT and
// SIGTERM for graceful shutdown. The daemon takes ownership of the
// configured audit sink and closes it on shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("daemon starting", logger.F("http_addr", d.httpAddr), logger.F("schedule", d.schedule))

	defer d.closeAuditDB()

	if d.pidFilePath != "" {
		pf, err := pidfile.New(d.pidFilePath)
		if err != nil {
			return fmt.Errorf("failed to acquire pid file lock: %w", err)
		}
		d.pidFile = pf
		d.log.Info("pid file acquired", logger.Path(d.pidFilePath))
		defer func() {
			if err := d.pidFile.Close(); err != nil {
				d.log.Warn("failed to release pid file", logger.F("error", err.Error()))
			} else {
				d.log.Debug("pid file released")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := d.startHTTP(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	d.state.Store(int32(StateReady))
	d.log.Info("daemon ready")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var schedulerDone chan struct{}
	if d.schedule != "" {
		schedulerDone = make(chan struct{})
		go d.runScheduler(ctx, schedulerDone)
	}

	select {
	case sig := <-sigCh:
		d.log.Info("received signal", logger.F("signal", sig.String()))
	case <-ctx.Done():
		d.log.Info("context canceled")
	case <-d.stopCh:
		d.log.Info("stop requested")
	}

	d.state.Store(int32(StateStopping))
	d.log.Info("daemon stopping")

	cancel()

	if schedulerDone != nil {
		<-schedulerDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.log.Warn("HTTP server shutdown error", logger.F("error", err.Error()))
	}

	d.log.Debug("waiting for in-flight runs to complete")
	if !d.waitForRuns(d.runWaitTimeout) {
		d.log.Warn("timed out waiting for in-flight runs", logger.F("timeout", d.runWaitTimeout.String()))
	}

	d.closeAuditDB()

	d.state.Store(int32(StateStopped))
	d.log.Info("daemon stopped")
	return nil
}

// Stop signals the daemon to shut down.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

func (d *Daemon) closeAuditDB() {
	d.auditOnce.Do(func() {
		if d.auditDB == nil {
			return
		}
		d.log.Debug("closing audit database")
		if err := d.auditDB.Close(); err != nil {
			d.log.Warn("failed to close audit database", logger.F("error", err.Error()))
		} else {
			d.log.Debug("audit database closed")
		}
	})
}

func (d *Daemon) waitForRuns(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.runsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// TriggerRun manually triggers a run (for API use). Returns an error if a
// run is already in progress.
func (d *Daemon) TriggerRun(ctx context.Context) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("run already in progress")
	}

	d.runsWG.Add(1)
	defer d.runsWG.Done()
	defer d.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			d.log.Error("trigger run panic recovered",
				logger.F("panic", fmt.Sprintf("%v", r)),
				logger.F("stack", string(stack)))

			d.mu.Lock()
			d.lastErr = fmt.Errorf("trigger panic: %v", r)
			d.runCount++
			d.lastRun = time.Now()
			d.mu.Unlock()

			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	return d.executeRun(ctx)
}

// State returns the current daemon state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// IsRunning returns true if a cleanup run is currently in progress.
func (d *Daemon) IsRunning() bool {
	return d.running.Load()
}

// LastRun returns info about the last run.
func (d *Daemon) LastRun() (time.Time, int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRun, d.runCount, d.lastErr
}

func (d *Daemon) runScheduler(ctx context.Context, done chan struct{}) {
	defer close(done)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			d.log.Error("scheduler panic recovered",
				logger.F("panic", fmt.Sprintf("%v", r)),
				logger.F("stack", string(stack)))

			d.mu.Lock()
			d.lastErr = fmt.Errorf("scheduler panic: %v", r)
			d.mu.Unlock()

			d.state.Store(int32(StateStopped))
			d.running.Store(false)
			d.Stop()
		}
	}()

	interval, err := parseSchedule(d.schedule)
	if err != nil {
		d.log.Error("invalid schedule", logger.F("schedule", d.schedule), logger.F("error", err.Error()))
		return
	}

	d.log.Info("scheduler started", logger.F("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Debug("scheduler stopping")
			return
		case <-ticker.C:
			if d.running.CompareAndSwap(false, true) {
				d.runsWG.Add(1)
				func() {
					defer d.runsWG.Done()
					defer d.running.Store(false)
					d.state.Store(int32(StateRunning))
					d.safeExecuteRun(ctx)
					d.state.Store(int32(StateReady))
				}()
			} else {
				d.log.Warn("skipping scheduled run - previous run still in progress")
			}
		}
	}
}

func (d *Daemon) safeExecuteRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			d.log.Error("run panic recovered",
				logger.F("panic", fmt.Sprintf("%v", r)),
				logger.F("stack", string(stack)))

			d.mu.Lock()
			d.lastErr = fmt.Errorf("run panic: %v", r)
			d.runCount++
			d.lastRun = time.Now()
			d.mu.Unlock()
		}
	}()

	err := d.executeRun(ctx)
	if err != nil && ctx.Err() == nil {
		d.log.Error("cleanup run failed", logger.F("error", err.Error()))
	}
}

func (d *Daemon) executeRun(ctx context.Context) error {
	d.log.Info("starting cleanup run")
	start := time.Now()

	err := d.runFunc(ctx)

	d.mu.Lock()
	d.lastRun = start
	d.lastErr = err
	d.runCount++
	d.mu.Unlock()

	duration := time.Since(start)
	if err != nil {
		d.log.Error("cleanup run failed", logger.F("duration", duration.String()), logger.F("error", err.Error()))
	} else {
		d.log.Info("cleanup run completed", logger.F("duration", duration.String()))
	}

	return err
}

// parseSchedule parses a simple schedule string into a duration.
// Supports: "1h", "30m", "6h", or "@every 1h".
func parseSchedule(s string) (time.Duration, error) {
	if len(s) > 7 && s[:7] == "@every " {
		s = s[7:]
	}
	return time.ParseDuration(s)
}

func (d *Daemon) startHTTP() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","state":"%s"}`, d.State().String())
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		state := d.State()
		w.Header().Set("Content-Type", "application/json")

		if state != StateReady && state != StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"ready":false,"state":"%s","reason":"daemon not ready"}`, state.String())
			return
		}

		if d.cfg != nil && len(d.cfg.Scan.Roots) > 0 {
			for _, root := range d.cfg.Scan.Roots {
				usage, err := rootVolumeUsage(root)
				if err != nil {
					d.log.Warn("disk check failed", logger.Path(root), logger.F("error", err.Error()))
					continue
				}
				if usage.UsedFraction > diskCriticalFraction {
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = fmt.Fprintf(w, `{"ready":false,"state":"%s","reason":"disk critically full","path":"%s","disk_used_percent":%.1f}`,
						state.String(), root, usage.UsedFraction*100.0)
					return
				}
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"ready":true,"state":"%s"}`, state.String())
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		lastRun, runCount, lastErr := d.LastRun()
		w.Header().Set("Content-Type", "application/json")

		errStr := ""
		if lastErr != nil {
			errStr = lastErr.Error()
		}
		lastRunStr := ""
		if !lastRun.IsZero() {
			lastRunStr = lastRun.Format(time.RFC3339)
		}

		d.writeJSONResponse(w, http.StatusOK, map[string]any{
			"state":      d.State().String(),
			"running":    d.IsRunning(),
			"last_run":   lastRunStr,
			"last_error": errStr,
			"run_count":  runCount,
			"schedule":   d.schedule,
		})
	})

	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), d.triggerTimeout)
		defer cancel()

		if err := d.TriggerRun(ctx); err != nil {
			d.writeJSONResponse(w, http.StatusConflict, map[string]any{
				"triggered": false,
				"error":     err.Error(),
			})
			return
		}

		d.writeJSONResponse(w, http.StatusOK, map[string]any{"triggered": true})
	})

	mux.HandleFunc("/api/config", d.handleAPIConfig)
	mux.HandleFunc("/api/audit/query", d.handleAuditQuery)
	mux.HandleFunc("/api/audit/stats", d.handleAuditStats)
	mux.HandleFunc("/api/trash", d.handleTrash)
	mux.HandleFunc("/api/trash/restore", d.handleTrashRestore)

	d.setupStaticFileServer(mux)

	var handler http.Handler = mux
	if d.rbacMiddleware != nil {
		handler = d.rbacMiddleware.Wrap(handler)
	}
	if d.authMiddleware != nil {
		handler = d.authMiddleware.Wrap(handler)
	}

	d.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", d.httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.httpAddr, err)
	}

	go func() {
		if err := d.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.log.Error("HTTP server error", logger.F("error", err.Error()))
		}
	}()

	return nil
}

func (d *Daemon) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if d.cfg == nil {
		d.writeJSONError(w, http.StatusNotFound, "config not available")
		return
	}
	d.writeJSONResponse(w, http.StatusOK, d.cfg)
}

const maxQueryLimit = 1000

// handleAuditQuery queries audit records with optional filters.
// Query params: since, until, operation, path, limit
func (d *Daemon) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if d.auditDB == nil {
		d.writeJSONError(w, http.StatusNotFound, "audit database not available")
		return
	}

	q := r.URL.Query()
	filter := auditlog.QueryFilter{
		OperationKind: q.Get("operation"),
		PathContains:  q.Get("path"),
	}

	if since := q.Get("since"); since != "" {
		if t, err := parseTimeParam(since); err == nil {
			filter.Since = t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := parseTimeParam(until); err == nil {
			filter.Until = t
		}
	}

	filter.Limit = 100
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			d.writeJSONError(w, http.StatusBadRequest, "invalid limit: must be a positive integer")
			return
		}
		if limit > maxQueryLimit {
			limit = maxQueryLimit
		}
		filter.Limit = limit
	}

	records, err := d.auditDB.Query(r.Context(), filter)
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "query failed: "+err.Error())
		return
	}

	d.writeJSONResponse(w, http.StatusOK, records)
}

func (d *Daemon) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if d.auditDB == nil {
		d.writeJSONError(w, http.StatusNotFound, "audit database not available")
		return
	}

	stats, err := d.auditDB.Stats(r.Context())
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "stats failed: "+err.Error())
		return
	}

	d.writeJSONResponse(w, http.StatusOK, stats)
}

// TrashItemResponse is the JSON representation of a trash item.
type TrashItemResponse struct {
	Name         string `json:"name"`
	OriginalPath string `json:"original_path"`
	Size         int64  `json:"size"`
	TrashedAt    string `json:"trashed_at"`
	IsDir        bool   `json:"is_dir"`
}

func (d *Daemon) handleTrash(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if d.trash == nil {
		d.writeJSONError(w, http.StatusNotFound, "trash not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		d.handleTrashList(w)
	case http.MethodDelete:
		d.handleTrashEmpty(w, r)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Daemon) handleTrashList(w http.ResponseWriter) {
	items, err := d.trash.List()
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "failed to list trash: "+err.Error())
		return
	}

	response := make([]TrashItemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, TrashItemResponse{
			Name:         item.Name,
			OriginalPath: item.OriginalPath,
			Size:         item.Size,
			TrashedAt:    item.TrashedAt.Format(time.RFC3339),
			IsDir:        item.IsDir,
		})
	}

	d.writeJSONResponse(w, http.StatusOK, response)
}

// handleTrashEmpty permanently deletes items from trash.
// Query params: older_than (duration string like "7d", "24h"), all (boolean)
func (d *Daemon) handleTrashEmpty(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("all") == "true" {
		d.emptyTrash(w, func(trash.TrashItem) bool { return true })
		return
	}

	olderThan := q.Get("older_than")
	if olderThan == "" {
		d.writeJSONError(w, http.StatusBadRequest, "must specify 'older_than' duration (e.g., '7d', '24h') or 'all=true'")
		return
	}

	duration, err := parseDurationWithDays(olderThan)
	if err != nil {
		d.writeJSONError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}
	cutoff := time.Now().Add(-duration)
	d.emptyTrash(w, func(item trash.TrashItem) bool { return item.TrashedAt.Before(cutoff) })
}

func (d *Daemon) emptyTrash(w http.ResponseWriter, match func(trash.TrashItem) bool) {
	items, err := d.trash.List()
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "failed to list trash: "+err.Error())
		return
	}

	var deleted int
	var bytesFreed int64
	for _, item := range items {
		if !match(item) {
			continue
		}
		if err := os.RemoveAll(item.TrashPath); err != nil {
			d.log.Warn("failed to delete trash item", logger.Path(item.TrashPath), logger.F("error", err.Error()))
			continue
		}
		_ = os.Remove(item.TrashPath + ".meta")
		deleted++
		bytesFreed += item.Size
	}

	d.writeJSONResponse(w, http.StatusOK, map[string]any{
		"deleted":     deleted,
		"bytes_freed": bytesFreed,
	})
}

// TrashRestoreRequest is the JSON request body for restore.
type TrashRestoreRequest struct {
	Name string `json:"name"`
}

func (d *Daemon) handleTrashRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if d.trash == nil {
		d.writeJSONError(w, http.StatusNotFound, "trash not configured")
		return
	}

	var req TrashRestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		d.writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	items, err := d.trash.List()
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "failed to list trash: "+err.Error())
		return
	}

	var targetItem *trash.TrashItem
	for i := range items {
		if items[i].Name == req.Name {
			targetItem = &items[i]
			break
		}
	}
	if targetItem == nil {
		d.writeJSONError(w, http.StatusNotFound, "item not found in trash: "+req.Name)
		return
	}

	originalPath, err := d.trash.Restore(targetItem.TrashPath)
	if err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, "failed to restore: "+err.Error())
		return
	}

	d.writeJSONResponse(w, http.StatusOK, map[string]any{
		"restored":      true,
		"original_path": originalPath,
	})
}

func parseDurationWithDays(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		numStr := s[:len(s)-1]
		var n int
		if _, err := fmt.Sscanf(numStr, "%d", &n); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
		return 0, fmt.Errorf("invalid day duration: %s", s)
	}
	return time.ParseDuration(s)
}

// setupStaticFileServer configures the mux to serve the embedded dashboard,
// with SPA-style fallback to index.html.
func (d *Daemon) setupStaticFileServer(mux *http.ServeMux) {
	dashboardFS, err := web.DistFS()
	if err != nil {
		d.log.Warn("dashboard not available", logger.F("error", err.Error()))
		return
	}
	if !web.HasDist() {
		d.log.Info("dashboard not built, UI disabled")
		return
	}

	fileServer := http.FileServer(http.FS(dashboardFS))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/api/") ||
			path == "/health" || path == "/ready" || path == "/status" || path == "/trigger" {
			http.NotFound(w, r)
			return
		}

		cleanPath := strings.TrimPrefix(path, "/")
		if cleanPath == "" {
			cleanPath = "index.html"
		}

		if _, err := fs.Stat(dashboardFS, cleanPath); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}

		indexFile, err := fs.ReadFile(dashboardFS, "index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexFile)
	})

	d.log.Info("frontend UI enabled")
}

func (d *Daemon) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.log.Error("failed to encode JSON error response", logger.F("error", err.Error()))
	}
}

func (d *Daemon) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		d.log.Error("failed to encode JSON response", logger.F("error", err.Error()))
	}
}

// parseTimeParam parses a time parameter in RFC3339, date, or duration-ago form.
func parseTimeParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if len(s) > 1 {
		unit := s[len(s)-1]
		numStr := s[:len(s)-1]
		var multiplier time.Duration
		switch unit {
		case 'h':
			multiplier = time.Hour
		case 'd':
			multiplier = 24 * time.Hour
		case 'm':
			multiplier = time.Minute
		}
		if multiplier > 0 {
			var n int
			if _, err := fmt.Sscanf(numStr, "%d", &n); err == nil && n > 0 {
				return time.Now().Add(-time.Duration(n) * multiplier), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", s)
}
