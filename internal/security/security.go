// Package security implements the Security Auditor: the pre-operation
// safety gate every candidate path must clear before the Clean Executor
// will touch it. It never mutates the filesystem; it only classifies risk.
package security

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
)

// systemAccountUIDMax is the conventional upper bound of reserved
// system-account UIDs on POSIX systems (root is 0; 1-999 are daemons and
// other non-human accounts on most Linux distributions).
const systemAccountUIDMax = 999

// Config is the Security Auditor's guardrail configuration.
type Config struct {
	ProtectedPaths       []string
	AllowedRoots         []string
	AllowDirDelete       bool
	EnforceMountBoundary bool
	MaxFileSizeWarn      int64
	MaxConcurrency       int
}

// userDocumentExtensions marks file types likely to be user-authored
// documents rather than cache or log output; matching a path here never
// blocks deletion by itself, it only raises risk to medium so the item
// gets individual review instead of automatic inclusion.
var userDocumentExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".odp": {},
	".rtf": {}, ".pages": {}, ".key": {}, ".numbers": {},
}

// systemPathPrefixes are well-known OS-owned directories consulted when
// deciding whether privileged bits on a file are system-provided
// (critical) or merely present on a user-space file (medium).
var systemPathPrefixes = []string{
	"/system", "/usr", "/bin", "/sbin", "/lib", "/lib64",
	"/boot", "/etc", "/private/var", "/windows",
}

// hasPrivilegedBits reports whether the file's mode carries setuid,
// setgid, or any execute bit.
func hasPrivilegedBits(mode os.FileMode) bool {
	return mode&(os.ModeSetuid|os.ModeSetgid) != 0 || mode&0111 != 0
}

// Engine is the default, deterministic SecurityAuditor implementation.
type Engine struct {
	cfg Config
	log logger.Logger
}

// New creates a Security Auditor with no-op logging.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, log: logger.NewNop()}
}

// NewWithLogger creates a Security Auditor with the given logger.
func NewWithLogger(cfg Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{cfg: cfg, log: log}
}

// Audit runs the full rule chain for a single path and returns a risk
// verdict. It is fail-closed: anything the engine cannot verify is denied
// at the highest risk level rather than allowed by default.
func (e *Engine) Audit(_ context.Context, path string, opts core.AuditOptions) core.AuditVerdict {
	candPath := filepath.Clean(path)

	roots := e.cfg.AllowedRoots
	if len(roots) == 0 && strings.TrimSpace(opts.ScanRoot) != "" {
		roots = []string{opts.ScanRoot}
	}
	if len(e.cfg.AllowedRoots) > 0 && strings.TrimSpace(opts.ScanRoot) == "" {
		return e.blockWithLog(candPath, "missing_scan_root", nil)
	}

	// 1) Guardrails: hard-denied paths regardless of anything else.
	for _, p := range e.cfg.ProtectedPaths {
		pp := filepath.Clean(p)
		if isPathOrChild(candPath, pp) {
			return e.blockWithLog(candPath, "protected_path", []string{"protected_paths"})
		}
	}
	if len(e.cfg.AllowedRoots) > 0 {
		allowed := false
		for _, r := range roots {
			if isPathOrChild(candPath, filepath.Clean(r)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return e.blockWithLog(candPath, "outside_allowed_roots", []string{"allowed_roots"})
		}
	}

	// 2) Traversal / symlink escape (ancestor walk never follows symlinks).
	scanRoot := strings.TrimSpace(opts.ScanRoot)
	if scanRoot == "" && len(roots) > 0 {
		scanRoot = roots[0]
	}
	if scanRoot != "" {
		if _, statErr := os.Lstat(candPath); statErr == nil {
			v := ancestorSymlinkContainment(scanRoot, candPath, ancestorSymlinkOptions{AllowRootSymlink: true})
			if !v.Allowed {
				if v.Reason == reasonOutsideRoot {
					return e.blockWithLog(candPath, "outside_allowed_roots", []string{"allowed_roots"})
				}
				return e.blockWithLog(candPath, "symlink_escape:"+v.Reason, []string{"symlink_containment"})
			}
		}
	}

	info, statErr := os.Lstat(candPath)
	if statErr != nil {
		// Vanished or unreadable: nothing further can be verified.
		return e.blockWithLog(candPath, "stat_error", []string{"stat"})
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(candPath)
		if err == nil && len(roots) > 0 {
			resolved := target
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(filepath.Dir(candPath), resolved)
			}
			resolved = filepath.Clean(resolved)
			escapes := true
			for _, r := range roots {
				if isPathOrChild(resolved, filepath.Clean(r)) {
					escapes = false
					break
				}
			}
			if escapes {
				return e.blockWithLog(candPath, "symlink_escape", []string{"symlink_containment"})
			}
		}
	}

	if info.IsDir() && !e.cfg.AllowDirDelete {
		return e.blockWithLog(candPath, "dir_delete_disabled", []string{"allow_dir_delete"})
	}

	risk := core.RiskMinimal
	var guardrails []string

	// 3) Ownership: files owned by the superuser or a system account are
	// not trusted to be "ours" to delete.
	uid, _, dev, _, ok := statDetails(info)
	if !ok {
		risk = core.MaxRisk(risk, core.RiskLow)
	} else if uid == 0 || uid <= systemAccountUIDMax {
		risk = core.MaxRisk(risk, core.RiskHigh)
		guardrails = append(guardrails, "ownership")
	}

	// 4) Executable/privileged bits: setuid, setgid, or a plain execute
	// bit is critical under a system prefix, medium under user space.
	if hasPrivilegedBits(info.Mode()) {
		if e.underSystemPrefix(candPath) {
			return e.blockWithLog(candPath, "privileged_bits", append(guardrails, "privileged_bits"))
		}
		risk = core.MaxRisk(risk, core.RiskMedium)
		guardrails = append(guardrails, "privileged_bits")
	}

	// 5) Mount boundary: candidate must live on the same device as its
	// scan root, so a bind-mount or symlinked-in filesystem never gets
	// treated as part of the root's own cleanup budget.
	if e.cfg.EnforceMountBoundary && scanRoot != "" && dev != 0 {
		if _, _, rootDev, _, rootOK := statDetailsForPath(scanRoot); rootOK && rootDev != 0 && rootDev != dev {
			return e.blockWithLog(candPath, "mount_boundary", append(guardrails, "mount_boundary"))
		}
	}

	// 6) Active-use: a file some process currently holds open is unsafe to
	// remove even when every static check passes.
	if inUse, checked := pathInUse(candPath); checked && inUse {
		return e.blockWithLog(candPath, "active_use", append(guardrails, "active_use"))
	} else if !checked {
		risk = core.MaxRisk(risk, core.RiskLow)
	}

	// 7) Code-signed / system provenance: best-effort, platform-specific.
	if signed, checked := codeSigned(candPath); checked && signed {
		return e.blockWithLog(candPath, "system_provenance", append(guardrails, "code_signature"))
	}

	// 8) Size sanity: warn-only, never blocks by itself.
	if e.cfg.MaxFileSizeWarn > 0 && !info.IsDir() && info.Size() > e.cfg.MaxFileSizeWarn {
		risk = core.MaxRisk(risk, core.RiskMedium)
		guardrails = append(guardrails, "size_sanity")
	}

	// 9) Extension and name heuristics: user-authored document types raise
	// risk for individual review even though nothing else fired.
	if _, isDoc := userDocumentExtensions[strings.ToLower(filepath.Ext(candPath))]; isDoc {
		risk = core.MaxRisk(risk, core.RiskMedium)
		guardrails = append(guardrails, "user_document_heuristic")
	}

	if risk >= core.RiskHigh {
		return e.verdict(candPath, risk, "elevated_risk", guardrails, true)
	}
	return e.verdict(candPath, risk, "ok", guardrails, false)
}

// BatchAudit runs Audit over many paths using a bounded worker pool,
// preserving input order in the result slice.
func (e *Engine) BatchAudit(ctx context.Context, paths []string, opts core.AuditOptions) []core.AuditVerdict {
	out := make([]core.AuditVerdict, len(paths))

	workers := e.cfg.MaxConcurrency
	if workers <= 0 {
		workers = 8
	}
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers <= 1 {
		for i, p := range paths {
			out[i] = e.Audit(ctx, p, opts)
		}
		return out
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = e.Audit(ctx, paths[i], opts)
			}
		}()
	}
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			out[i] = core.NewAuditVerdict(core.RiskCritical, "cancelled", nil, true)
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// underSystemPrefix reports whether path falls under a configured
// protected path or a well-known OS-owned directory.
func (e *Engine) underSystemPrefix(path string) bool {
	for _, p := range e.cfg.ProtectedPaths {
		if isPathOrChild(path, filepath.Clean(p)) {
			return true
		}
	}
	for _, p := range systemPathPrefixes {
		if isPathOrChild(path, p) {
			return true
		}
	}
	return false
}

func statDetailsForPath(path string) (uid uint32, gid uint32, dev uint64, ino uint64, ok bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, 0, 0, 0, false
	}
	u, g, d, i, ok := statDetails(info)
	return u, g, d, i, ok
}

func (e *Engine) verdict(path string, risk core.RiskLevel, reason string, guardrails []string, blocks bool) core.AuditVerdict {
	v := core.NewAuditVerdict(risk, reason, guardrails, blocks)
	e.log.Debug("security audit", logger.Path(path), logger.F("risk", risk.String()), logger.F("reason", reason))
	return v
}

func (e *Engine) blockWithLog(path, reason string, guardrails []string) core.AuditVerdict {
	return e.verdict(path, core.RiskCritical, reason, guardrails, true)
}
