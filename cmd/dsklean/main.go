package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsklean/dsklean/internal/auditlog"
	"github.com/dsklean/dsklean/internal/auth"
	"github.com/dsklean/dsklean/internal/backup"
	"github.com/dsklean/dsklean/internal/config"
	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/daemon"
	"github.com/dsklean/dsklean/internal/detector"
	"github.com/dsklean/dsklean/internal/executor"
	"github.com/dsklean/dsklean/internal/indexcache"
	"github.com/dsklean/dsklean/internal/logger"
	"github.com/dsklean/dsklean/internal/metrics"
	"github.com/dsklean/dsklean/internal/notifier"
	"github.com/dsklean/dsklean/internal/scanner"
	"github.com/dsklean/dsklean/internal/security"
	"github.com/dsklean/dsklean/internal/synthesizer"
	"github.com/dsklean/dsklean/internal/trash"
)

// version is set via ldflags at build time.
var version = "dev"

// CLI flags
var (
	showVersion    = flag.Bool("version", false, "print version and exit")
	configPath     = flag.String("config", "", "path to YAML configuration file")
	root           = flag.String("root", "", "root directory to scan")
	mode           = flag.String("mode", "", "mode: dry-run or execute")
	maxItems       = flag.Int("max", 0, "max recommendation items to print")
	minAgeDays     = flag.Int("min-age-days", -1, "minimum age in days (-1 = use config default)")
	auditPath      = flag.String("audit", "", "audit log path (jsonl)")
	auditDBPath    = flag.String("audit-db", "", "audit database path (sqlite)")
	protectedPaths = flag.String("protected", "", "comma-separated additional protected paths")
	allowDirDelete = flag.Bool("allow-dir-delete", false, "allow deletion of directories")
	minSizeMB      = flag.Int("min-size-mb", -1, "minimum file size in MB (-1 = use config default)")
	extensions     = flag.String("extensions", "", "comma-separated extensions to match")
	exclusions     = flag.String("exclude", "", "comma-separated glob patterns to exclude (e.g., '*.important,keep-*')")
	categories     = flag.String("categories", "", "category set to scan: safe, developer, or all")
	enableMetrics  = flag.Bool("metrics", false, "enable Prometheus metrics endpoint")
	metricsAddr    = flag.String("metrics-addr", "", "metrics server address (default :9090)")
	maxDeletions   = flag.Int("max-deletions", -1, "max deletions per run (-1 = use config default, 0 = unlimited)")
	assumeYes      = flag.Bool("yes", false, "skip interactive confirmation for large deletions")

	// Daemon mode flags
	daemonMode = flag.Bool("daemon", false, "run as long-running daemon")
	schedule   = flag.String("schedule", "", "run schedule (e.g., '1h', '30m', '@every 6h')")
	daemonAddr = flag.String("daemon-addr", "127.0.0.1:8080", "daemon HTTP address (use 0.0.0.0:8080 for external access)")
	pidFile    = flag.String("pid-file", "", "PID file path for single-instance enforcement")

	// Soft-delete flags
	trashPath = flag.String("trash-path", "", "move files to trash instead of permanent delete")

	// Loki flags
	enableLoki = flag.Bool("loki", false, "enable Loki log shipping")
	lokiURL    = flag.String("loki-url", "", "Loki server URL (default http://localhost:3100)")

	// Auth flags
	authEnabled = flag.Bool("auth", false, "enable API authentication")
	authKey     = flag.String("auth-key", "", "API key for authentication (format: dk_<32 hex chars>)")
)

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			runInitCmd(os.Args[2:])
			return
		case "query":
			runQueryCmd(os.Args[2:])
			return
		case "stats":
			runStatsCmd(os.Args[2:])
			return
		case "verify":
			runVerifyCmd(os.Args[2:])
			return
		case "validate":
			runValidateCmd(os.Args[2:])
			return
		case "trash":
			runTrashCmd(os.Args[2:])
			return
		}
	}

	flag.Parse()

	if *showVersion {
		fmt.Println("dsklean", version)
		return
	}

	// 1. Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(2)
	}

	// 2. Merge CLI flags over config values
	mergeFlags(cfg)

	// 3. Validate final configuration
	if err := config.ValidateFinal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// 4. Initialize logger from config
	log, lokiCleanup, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if lokiCleanup != nil {
		defer lokiCleanup()
	}

	log.Info("dsklean starting",
		logger.F("mode", cfg.Execution.Mode),
		logger.F("roots", cfg.Scan.Roots),
	)

	// 5. Check for daemon mode
	if *daemonMode {
		if err := runDaemon(cfg, log); err != nil {
			log.Error("daemon failed", logger.F("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	// 6. Run main logic with logger-aware components (one-shot mode)
	if err := run(cfg, log); err != nil {
		log.Error("execution failed", logger.F("error", err.Error()))
		os.Exit(1)
	}
}

// runInitCmd handles the "init" subcommand for first-time setup.
func runInitCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite existing configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean init [options]\n\nInitialize dsklean configuration for first-time use.\n\nThis command creates:\n")
		fmt.Fprintf(os.Stderr, "  - ~/.config/dsklean/config.yaml (configuration file)\n")
		fmt.Fprintf(os.Stderr, "  - ~/.local/share/dsklean/       (data directory for audit logs, backups, and trash)\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nAfter initialization, simply run:\n")
		fmt.Fprintf(os.Stderr, "  dsklean -daemon\n")
	}

	_ = fs.Parse(args)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	configDir := filepath.Join(homeDir, ".config", "dsklean")
	dataDir := filepath.Join(homeDir, ".local", "share", "dsklean")
	configFile := filepath.Join(configDir, "config.yaml")
	trashDir := filepath.Join(dataDir, "trash")
	backupDir := filepath.Join(dataDir, "backup")

	if !*force {
		if _, err := os.Stat(configFile); err == nil {
			fmt.Fprintf(os.Stderr, "Configuration already exists at %s\n", configFile)
			fmt.Fprintf(os.Stderr, "Use -force to overwrite.\n")
			os.Exit(1)
		}
	}

	dirs := []string{configDir, dataDir, trashDir, backupDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "error: could not create directory %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("Created: %s\n", dir)
	}

	defaultConfig := fmt.Sprintf(`# dsklean Configuration
# Generated by: dsklean init
# Location: %s
#
# Quick start:
#   dsklean -daemon          # Start with scheduled cleanup and an HTTP API
#   dsklean -root /tmp       # One-shot dry-run scan
#
# Change mode to "execute" when ready to actually delete files.

version: 1

scan:
  roots:
    - /tmp
    - /var/tmp
  recursive: true
  max_depth: 0
  include_files: true
  include_dirs: false
  categories: all

policy:
  min_age_days: 7
  min_size_mb: 0
  extensions: []
  exclusions:
    - ".gitkeep"
    - "*.socket"
    - "*.sock"
    - "*.lock"
    - "*.pid"

safety:
  protected_paths:
    - /boot
    - /etc
    - /usr
    - /var
    - /sys
    - /proc
    - /dev
    - /home
    - /root
  allow_dir_delete: false
  enforce_mount_boundary: false

execution:
  mode: dry-run
  timeout: 5m
  max_items: 50
  audit_db_path: %s/audit.db
  trash_path: %s
  trash_max_age: 168h
  backup_path: %s
  enable_security_audit: true

logging:
  level: info
  format: json
  output: stderr

daemon:
  enabled: true
  http_addr: ":8080"
  schedule: "6h"
  trigger_timeout: 30m

metrics:
  enabled: true
  namespace: dsklean
`, configFile, dataDir, trashDir, backupDir)

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error: could not write config file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created: %s\n", configFile)

	fmt.Println()
	fmt.Println("dsklean initialized successfully!")
	fmt.Println()
	fmt.Println("Configuration: " + configFile)
	fmt.Println("Audit database: " + filepath.Join(dataDir, "audit.db"))
	fmt.Println("Trash directory: " + trashDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review/edit the config: " + configFile)
	fmt.Println("  2. Start the daemon:       dsklean -daemon")
	fmt.Println()
	fmt.Println("The default mode is 'dry-run' (no files deleted).")
	fmt.Println("Change execution.mode to 'execute' when ready.")
}

// runQueryCmd handles the "query" subcommand for reviewing audit logs.
func runQueryCmd(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", "", "audit database path (required)")
	since := fs.String("since", "", "show records since (e.g., '24h', '7d', '2024-01-01')")
	until := fs.String("until", "", "show records until (e.g., 'now', '2024-01-15')")
	op := fs.String("op", "", "filter by operation kind (scan, clean)")
	path := fs.String("path", "", "filter by path (partial match)")
	limit := fs.Int("limit", 100, "max records to return")
	jsonOut := fs.Bool("json", false, "output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean query [options]\n\nQuery the audit database for log review.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dsklean query -db audit.db -since 24h\n")
		fmt.Fprintf(os.Stderr, "  dsklean query -db audit.db -op clean -limit 50\n")
	}

	_ = fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintf(os.Stderr, "error: -db is required\n")
		fs.Usage()
		os.Exit(2)
	}

	sink, err := auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: *dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	filter := auditlog.QueryFilter{
		OperationKind: *op,
		PathContains:  *path,
		Limit:         *limit,
	}
	if *since != "" {
		filter.Since = parseTimeArg(*since)
	}
	if *until != "" {
		filter.Until = parseTimeArg(*until)
	}

	records, err := sink.Query(context.Background(), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: query failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Found %d records:\n\n", len(records))
	for _, r := range records {
		fmt.Printf("[%s] %s %s", r.Timestamp.Format("2006-01-02 15:04:05"), r.OperationKind, r.TargetPath)
		if outcome, ok := r.Detail["outcome"]; ok {
			fmt.Printf(" outcome=%v", outcome)
		}
		if size, ok := r.Detail["size_bytes"]; ok {
			fmt.Printf(" size=%v", size)
		}
		fmt.Println()
	}
}

// runStatsCmd handles the "stats" subcommand for audit statistics.
func runStatsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", "", "audit database path (required)")
	jsonOut := fs.Bool("json", false, "output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean stats [options]\n\nShow audit database statistics.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintf(os.Stderr, "error: -db is required\n")
		fs.Usage()
		os.Exit(2)
	}

	sink, err := auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: *dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	stats, err := sink.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: stats failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Audit Database Statistics")
	fmt.Println("=========================")
	fmt.Printf("Total Records: %d\n", stats.TotalRecords)
	if stats.TotalRecords > 0 {
		fmt.Printf("First Record:  %s\n", stats.FirstRecord.Format("2006-01-02 15:04:05"))
		fmt.Printf("Last Record:   %s\n", stats.LastRecord.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Items Deleted: %d\n", stats.ItemsDeleted)
}

// runVerifyCmd handles the "verify" subcommand for integrity checking. It
// verifies the NDJSON hash chain (if -audit is given) and/or the SQLite
// mirror (if -db is given), reporting pass/fail for each.
func runVerifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", "", "audit database path (sqlite)")
	chainPath := fs.String("audit", "", "audit log path (jsonl hash chain)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean verify [options]\n\nVerify audit log integrity (detect tampering).\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	if *dbPath == "" && *chainPath == "" {
		fmt.Fprintf(os.Stderr, "error: at least one of -db or -audit is required\n")
		fs.Usage()
		os.Exit(2)
	}

	ok := true

	if *chainPath != "" {
		chain, err := auditlog.NewChain(*chainPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to open audit log: %v\n", err)
			os.Exit(1)
		}
		valid, err := chain.Verify(context.Background())
		_ = chain.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: chain verification failed: %v\n", err)
			os.Exit(1)
		}
		if valid {
			fmt.Printf("PASS: hash chain %s verified, no tampering detected.\n", *chainPath)
		} else {
			fmt.Printf("FAIL: hash chain %s is broken (tampering or corruption detected).\n", *chainPath)
			ok = false
		}
	}

	if *dbPath != "" {
		sink, err := auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: *dbPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to open database: %v\n", err)
			os.Exit(1)
		}
		valid, err := sink.Verify(context.Background())
		_ = sink.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: database verification failed: %v\n", err)
			os.Exit(1)
		}
		if valid {
			fmt.Printf("PASS: audit database %s verified, no missing checksums.\n", *dbPath)
		} else {
			fmt.Printf("FAIL: audit database %s has records with missing checksums.\n", *dbPath)
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}

// runValidateCmd handles the "validate" subcommand for config validation.
func runValidateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "", "path to configuration file (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean validate [options]\n\nValidate a configuration file without running cleanup.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dsklean validate -config /etc/dsklean/config.yaml\n")
		fmt.Fprintf(os.Stderr, "  dsklean validate -config ./config.yaml\n")
	}

	_ = fs.Parse(args)

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "error: -config is required\n")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v", err)
		os.Exit(1)
	}

	fmt.Printf("OK: configuration file %q is valid\n", *configFile)
	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Roots:         %v\n", cfg.Scan.Roots)
	fmt.Printf("  Mode:          %s\n", cfg.Execution.Mode)
	fmt.Printf("  Categories:    %s\n", cfg.Scan.Categories)
	fmt.Printf("  Min age:       %d days\n", cfg.Policy.MinAgeDays)
	if cfg.Policy.MinSizeMB > 0 {
		fmt.Printf("  Min size:      %d MB\n", cfg.Policy.MinSizeMB)
	}
	if len(cfg.Policy.Extensions) > 0 {
		fmt.Printf("  Extensions:    %v\n", cfg.Policy.Extensions)
	}
	if len(cfg.Policy.Exclusions) > 0 {
		fmt.Printf("  Exclusions:    %v\n", cfg.Policy.Exclusions)
	}
	if cfg.Daemon.Enabled {
		fmt.Printf("  Daemon:        enabled (schedule: %s)\n", cfg.Daemon.Schedule)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:       enabled\n")
	}
	if cfg.Auth != nil && cfg.Auth.Enabled {
		fmt.Printf("  Auth:          enabled\n")
	}
}

// runTrashCmd handles the "trash" subcommand for managing soft-deleted files.
func runTrashCmd(args []string) {
	if len(args) == 0 {
		printTrashUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		runTrashList(args[1:])
	case "restore":
		runTrashRestore(args[1:])
	case "empty":
		runTrashEmpty(args[1:])
	case "help", "-h", "--help":
		printTrashUsage()
	default:
		fmt.Fprintf(os.Stderr, "error: unknown trash subcommand: %s\n", args[0])
		printTrashUsage()
		os.Exit(2)
	}
}

func printTrashUsage() {
	fmt.Fprintf(os.Stderr, `Usage: dsklean trash <command> [options]

Manage soft-deleted files in the trash directory.

Commands:
  list      List all items in trash
  restore   Restore an item from trash to its original location
  empty     Permanently delete items from trash

Examples:
  dsklean trash list -path /var/lib/dsklean/trash
  dsklean trash restore -path /var/lib/dsklean/trash -item <trash-name>
  dsklean trash empty -path /var/lib/dsklean/trash -older-than 7d

Run 'dsklean trash <command> -h' for more information on a command.
`)
}

// runTrashList lists all items currently in trash.
func runTrashList(args []string) {
	fs := flag.NewFlagSet("trash list", flag.ExitOnError)
	trashDir := fs.String("path", "", "trash directory path (required, or set in config)")
	configFile := fs.String("config", "", "path to config file (to read trash path)")
	jsonOut := fs.Bool("json", false, "output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean trash list [options]\n\nList all items in the trash directory.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(args)

	path := resolveTrashPath(*trashDir, *configFile)
	if path == "" {
		fmt.Fprintf(os.Stderr, "error: trash path required (use -path or configure execution.trash_path)\n")
		fs.Usage()
		os.Exit(2)
	}

	mgr, err := trash.New(trash.Config{TrashPath: path}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open trash: %v\n", err)
		os.Exit(1)
	}

	items, err := mgr.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to list trash: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(items) == 0 {
		fmt.Println("Trash is empty.")
		return
	}

	fmt.Printf("Trash directory: %s\n", path)
	fmt.Printf("Items: %d\n\n", len(items))

	var totalSize int64
	for _, item := range items {
		totalSize += item.Size
	}
	fmt.Printf("Total size: %s\n\n", formatBytesHuman(totalSize))

	fmt.Printf("%-40s  %-10s  %-20s  %s\n", "NAME", "SIZE", "TRASHED AT", "ORIGINAL PATH")
	fmt.Printf("%s\n", strings.Repeat("-", 100))

	for _, item := range items {
		name := item.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}

		typeIndicator := ""
		if item.IsDir {
			typeIndicator = "/"
		}

		fmt.Printf("%-40s  %-10s  %-20s  %s\n",
			name+typeIndicator,
			formatBytesHuman(item.Size),
			item.TrashedAt.Format("2006-01-02 15:04:05"),
			item.OriginalPath,
		)
	}
}

// runTrashRestore restores an item from trash.
func runTrashRestore(args []string) {
	fs := flag.NewFlagSet("trash restore", flag.ExitOnError)
	trashDir := fs.String("path", "", "trash directory path (required, or set in config)")
	configFile := fs.String("config", "", "path to config file (to read trash path)")
	itemName := fs.String("item", "", "name of the item in trash to restore (required)")
	force := fs.Bool("force", false, "overwrite if destination exists")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean trash restore [options]\n\nRestore an item from trash to its original location.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dsklean trash restore -path /var/lib/dsklean/trash -item 20240115-103000_abc12345_file.txt\n")
	}

	_ = fs.Parse(args)

	path := resolveTrashPath(*trashDir, *configFile)
	if path == "" {
		fmt.Fprintf(os.Stderr, "error: trash path required (use -path or configure execution.trash_path)\n")
		fs.Usage()
		os.Exit(2)
	}

	if *itemName == "" {
		fmt.Fprintf(os.Stderr, "error: -item is required\n")
		fs.Usage()
		os.Exit(2)
	}

	mgr, err := trash.New(trash.Config{TrashPath: path}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open trash: %v\n", err)
		os.Exit(1)
	}

	items, err := mgr.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to list trash: %v\n", err)
		os.Exit(1)
	}

	var targetItem *trash.TrashItem
	for i := range items {
		if items[i].Name == *itemName {
			targetItem = &items[i]
			break
		}
	}

	if targetItem == nil {
		fmt.Fprintf(os.Stderr, "error: item not found in trash: %s\n", *itemName)
		fmt.Fprintf(os.Stderr, "\nUse 'dsklean trash list -path %s' to see available items.\n", path)
		os.Exit(1)
	}

	if !*force {
		if _, err := os.Stat(targetItem.OriginalPath); err == nil {
			fmt.Fprintf(os.Stderr, "error: destination already exists: %s\n", targetItem.OriginalPath)
			fmt.Fprintf(os.Stderr, "Use -force to overwrite.\n")
			os.Exit(1)
		}
	} else {
		if _, err := os.Stat(targetItem.OriginalPath); err == nil {
			if err := os.RemoveAll(targetItem.OriginalPath); err != nil {
				fmt.Fprintf(os.Stderr, "error: failed to remove existing destination: %v\n", err)
				os.Exit(1)
			}
		}
	}

	originalPath, err := mgr.Restore(targetItem.TrashPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: restore failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Restored: %s -> %s\n", *itemName, originalPath)
}

// trashEmptyOptions holds parsed options for trash empty command.
type trashEmptyOptions struct {
	path      string
	maxAge    time.Duration
	all       bool
	dryRun    bool
	force     bool
	olderThan string
}

// runTrashEmpty permanently deletes items from trash.
func runTrashEmpty(args []string) {
	opts := parseTrashEmptyFlags(args)

	mgr, err := trash.New(trash.Config{
		TrashPath: opts.path,
		MaxAge:    opts.maxAge,
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open trash: %v\n", err)
		os.Exit(1)
	}

	items, err := mgr.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to list trash: %v\n", err)
		os.Exit(1)
	}

	if len(items) == 0 {
		fmt.Println("Trash is already empty.")
		return
	}

	toDelete, totalBytes := filterTrashItems(items, opts)
	if len(toDelete) == 0 {
		fmt.Printf("No items older than %s found in trash.\n", opts.olderThan)
		return
	}

	fmt.Printf("Items to delete: %d\n", len(toDelete))
	fmt.Printf("Space to free: %s\n\n", formatBytesHuman(totalBytes))

	if opts.dryRun {
		printTrashDryRun(toDelete)
		return
	}

	if !opts.force && !confirmTrashEmpty(len(toDelete), totalBytes) {
		fmt.Println("Aborted.")
		return
	}

	executeTrashEmpty(mgr, toDelete, opts.all)
}

// parseTrashEmptyFlags parses and validates flags for trash empty command.
func parseTrashEmptyFlags(args []string) trashEmptyOptions {
	fs := flag.NewFlagSet("trash empty", flag.ExitOnError)
	trashDir := fs.String("path", "", "trash directory path (required, or set in config)")
	configFile := fs.String("config", "", "path to config file (to read trash path)")
	olderThan := fs.String("older-than", "", "only delete items older than this (e.g., '7d', '24h')")
	all := fs.Bool("all", false, "delete ALL items (ignores -older-than)")
	dryRun := fs.Bool("dry-run", false, "show what would be deleted without actually deleting")
	force := fs.Bool("force", false, "skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsklean trash empty [options]\n\nPermanently delete items from trash.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dsklean trash empty -path /var/lib/dsklean/trash -older-than 7d\n")
		fmt.Fprintf(os.Stderr, "  dsklean trash empty -path /var/lib/dsklean/trash -all -force\n")
		fmt.Fprintf(os.Stderr, "  dsklean trash empty -path /var/lib/dsklean/trash -all -dry-run\n")
	}

	_ = fs.Parse(args)

	path := resolveTrashPath(*trashDir, *configFile)
	if path == "" {
		fmt.Fprintf(os.Stderr, "error: trash path required (use -path or configure execution.trash_path)\n")
		fs.Usage()
		os.Exit(2)
	}

	if !*all && *olderThan == "" {
		fmt.Fprintf(os.Stderr, "error: must specify -older-than or -all\n")
		fs.Usage()
		os.Exit(2)
	}

	var maxAge time.Duration
	if *olderThan != "" {
		maxAge = parseAgeDuration(*olderThan)
		if maxAge == 0 {
			fmt.Fprintf(os.Stderr, "error: invalid -older-than format: %s (use e.g., '7d', '24h', '30m')\n", *olderThan)
			os.Exit(2)
		}
	}

	return trashEmptyOptions{
		path:      path,
		maxAge:    maxAge,
		all:       *all,
		dryRun:    *dryRun,
		force:     *force,
		olderThan: *olderThan,
	}
}

// filterTrashItems filters items based on age or all flag.
func filterTrashItems(items []trash.TrashItem, opts trashEmptyOptions) ([]trash.TrashItem, int64) {
	cutoff := time.Now().Add(-opts.maxAge)
	var toDelete []trash.TrashItem
	var totalBytes int64

	for _, item := range items {
		if opts.all || item.TrashedAt.Before(cutoff) {
			toDelete = append(toDelete, item)
			totalBytes += item.Size
		}
	}
	return toDelete, totalBytes
}

// printTrashDryRun prints what would be deleted in dry-run mode.
func printTrashDryRun(items []trash.TrashItem) {
	fmt.Println("Items that would be deleted:")
	for _, item := range items {
		age := time.Since(item.TrashedAt).Round(time.Hour)
		fmt.Printf("  - %s (age: %s, size: %s)\n", item.Name, age, formatBytesHuman(item.Size))
	}
	fmt.Println("\n(dry-run mode, nothing was deleted)")
}

// confirmTrashEmpty prompts user for confirmation.
func confirmTrashEmpty(count int, totalBytes int64) bool {
	return promptYesNo(fmt.Sprintf("This will permanently delete %d items (%s). Continue?", count, formatBytesHuman(totalBytes)))
}

// executeTrashEmpty performs the actual deletion.
func executeTrashEmpty(mgr *trash.Manager, toDelete []trash.TrashItem, deleteAll bool) {
	if deleteAll {
		var deletedCount int
		var freedBytes int64

		for _, item := range toDelete {
			if err := os.RemoveAll(item.TrashPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to delete %s: %v\n", item.Name, err)
				continue
			}
			_ = os.Remove(item.TrashPath + ".meta")
			deletedCount++
			freedBytes += item.Size
		}

		fmt.Printf("Deleted: %d items\n", deletedCount)
		fmt.Printf("Freed: %s\n", formatBytesHuman(freedBytes))
	} else {
		count, bytesFreed, err := mgr.Cleanup(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: cleanup failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted: %d items\n", count)
		fmt.Printf("Freed: %s\n", formatBytesHuman(bytesFreed))
	}
}

// resolveTrashPath determines the trash path from flag or config.
func resolveTrashPath(flagPath, configFile string) string {
	if flagPath != "" {
		return flagPath
	}

	cfgPath := configFile
	if cfgPath == "" {
		cfgPath = config.FindConfigFile()
	}

	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err == nil && cfg.Execution.TrashPath != "" {
			return cfg.Execution.TrashPath
		}
	}

	return ""
}

// parseAgeDuration parses age strings like "7d", "24h", "30m"
func parseAgeDuration(s string) time.Duration {
	if len(s) < 2 {
		return 0
	}

	unit := s[len(s)-1]
	numStr := s[:len(s)-1]

	var n int
	if _, err := fmt.Sscanf(numStr, "%d", &n); err != nil || n <= 0 {
		return 0
	}

	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'h':
		return time.Duration(n) * time.Hour
	case 'm':
		return time.Duration(n) * time.Minute
	default:
		return 0
	}
}

// parseTimeArg parses a time argument like "24h", "7d", or "2024-01-01"
func parseTimeArg(s string) time.Time {
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
				return time.Now().Add(-time.Duration(n) * multiplier)
			}
		}
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}

	return time.Time{}
}

// formatBytesHuman formats bytes in human-readable format
func formatBytesHuman(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// promptYesNo asks a yes/no question on stdin; used for interactive
// large-deletion confirmation in one-shot mode.
func promptYesNo(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// runDaemon starts dsklean in daemon mode.
func runDaemon(cfg *config.Config, log logger.Logger) error {
	sched := *schedule
	if sched == "" {
		sched = cfg.Daemon.Schedule
	}
	if sched == "" {
		return fmt.Errorf("daemon mode requires -schedule flag or daemon.schedule in config")
	}

	addr := *daemonAddr

	log.Info("starting daemon mode",
		logger.F("schedule", sched),
		logger.F("http_addr", addr),
	)

	var m core.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.NewPrometheus(nil)
		metricsServer = metrics.NewServer(cfg.Daemon.MetricsAddr)

		go func() {
			log.Info("metrics server starting", logger.F("addr", metricsServer.Addr()))
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server error", logger.F("error", err.Error()))
			}
		}()

		defer func() {
			log.Info("metrics server stopping")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown error", logger.F("error", err.Error()))
			}
		}()
	} else {
		m = metrics.NewNoop()
	}

	notify := createNotifier(cfg.Notifications, log)

	// Separate SQLite sink for the daemon's query/stats API endpoints;
	// runCore opens its own sink (or shares this one) per pipeline run.
	var sqlSink *auditlog.SQLiteSink
	if cfg.Execution.AuditDBPath != "" {
		var err error
		sqlSink, err = auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: cfg.Execution.AuditDBPath})
		if err != nil {
			log.Warn("failed to initialize audit DB for API", logger.F("error", err.Error()))
		} else {
			log.Info("audit API enabled", logger.Path(cfg.Execution.AuditDBPath))
			defer func() {
				if err := sqlSink.Close(); err != nil {
					log.Warn("audit DB close error", logger.F("error", err.Error()))
				}
			}()
		}
	}

	runFunc := func(ctx context.Context) error {
		startTime := time.Now()
		rootStr := ""
		if len(cfg.Scan.Roots) > 0 {
			rootStr = cfg.Scan.Roots[0]
		}

		_ = notify.Notify(ctx, notifier.WebhookPayload{
			Event:     notifier.EventCleanupStarted,
			Timestamp: startTime,
			Message:   fmt.Sprintf("Cleanup started for %s", rootStr),
		})

		result, err := runCore(ctx, cfg, log, m, true)

		duration := time.Since(startTime)
		payload := notifier.WebhookPayload{
			Timestamp: time.Now(),
			Summary: &notifier.CleanupSummary{
				Root:        rootStr,
				Mode:        cfg.Execution.Mode,
				Duration:    duration.Round(time.Second).String(),
				StartedAt:   startTime,
				CompletedAt: time.Now(),
			},
		}
		if result != nil {
			payload.Summary.FilesScanned = result.itemsScanned
			payload.Summary.FilesDeleted = result.itemsDeleted
			payload.Summary.BytesFreed = result.bytesReclaimed
		}

		if err != nil {
			payload.Event = notifier.EventCleanupFailed
			payload.Message = fmt.Sprintf("Cleanup failed: %v", err)
			payload.Summary.ErrorMessages = []string{err.Error()}
			payload.Summary.Errors = 1
		} else {
			payload.Event = notifier.EventCleanupCompleted
			payload.Message = "Cleanup completed successfully"
		}

		_ = notify.Notify(ctx, payload)

		return err
	}

	var authMW *auth.Middleware
	var rbacMW *auth.RBACMiddleware

	if cfg.Auth != nil && cfg.Auth.Enabled {
		authenticators := []auth.Authenticator{}

		if cfg.Auth.APIKeys != nil && cfg.Auth.APIKeys.Enabled {
			apiKeyAuth, err := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{
				Enabled:    cfg.Auth.APIKeys.Enabled,
				Key:        cfg.Auth.APIKeys.Key,
				KeyEnv:     cfg.Auth.APIKeys.KeyEnv,
				KeysFile:   cfg.Auth.APIKeys.KeysFile,
				HeaderName: cfg.Auth.APIKeys.HeaderName,
			}, log)
			if err != nil {
				return fmt.Errorf("auth setup failed: %w", err)
			}
			authenticators = append(authenticators, apiKeyAuth)
		}

		if len(authenticators) > 0 {
			publicPaths := cfg.Auth.PublicPaths
			if publicPaths == nil {
				publicPaths = []string{"/health"}
			}
			authMW = auth.NewMiddleware(log, authenticators, publicPaths)
			rbacMW = auth.NewRBACMiddleware(auth.DefaultPermissions(), log)
			log.Info("authentication enabled", logger.F("methods", len(authenticators)))
		}
	}

	var trashMgr *trash.Manager
	if cfg.Execution.TrashPath != "" {
		var err error
		trashMgr, err = trash.New(trash.Config{
			TrashPath: cfg.Execution.TrashPath,
			MaxAge:    cfg.Execution.TrashMaxAge,
		}, log)
		if err != nil {
			log.Warn("failed to initialize trash manager for API", logger.F("error", err.Error()))
		} else {
			log.Info("trash API enabled", logger.Path(cfg.Execution.TrashPath))
		}
	}

	d := daemon.New(log, runFunc, daemon.Config{
		Schedule:       sched,
		HTTPAddr:       addr,
		TriggerTimeout: cfg.Daemon.TriggerTimeout,
		PIDFile:        cfg.Daemon.PIDFile,
		AppConfig:      cfg,
		AuditDB:        sqlSink,
		Trash:          trashMgr,
		AuthMiddleware: authMW,
		RBACMiddleware: rbacMW,
	})

	return d.Run(context.Background())
}

// loadConfig loads configuration from file or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	return cfg, nil
}

// mergeFlags applies CLI flag values over config values.
// CLI flags take precedence (only if explicitly set).
//
//nolint:gocyclo // Flag merging is repetitive but straightforward; splitting would obscure logic
func mergeFlags(cfg *config.Config) {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if flagSet["root"] && *root != "" {
		cfg.Scan.Roots = []string{filepath.Clean(*root)}
	}

	if flagSet["mode"] && *mode != "" {
		cfg.Execution.Mode = *mode
	}

	if flagSet["max"] && *maxItems > 0 {
		cfg.Execution.MaxItems = *maxItems
	}

	if flagSet["max-deletions"] && *maxDeletions >= 0 {
		cfg.Execution.MaxDeletionsPerRun = *maxDeletions
	}

	if flagSet["min-age-days"] && *minAgeDays >= 0 {
		cfg.Policy.MinAgeDays = *minAgeDays
	}

	if flagSet["min-size-mb"] && *minSizeMB >= 0 {
		cfg.Policy.MinSizeMB = *minSizeMB
	}

	if flagSet["audit"] {
		cfg.Execution.AuditPath = *auditPath
	}
	if flagSet["audit-db"] {
		cfg.Execution.AuditDBPath = *auditDBPath
	}

	if flagSet["protected"] && *protectedPaths != "" {
		for _, p := range strings.Split(*protectedPaths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Safety.ProtectedPaths = append(cfg.Safety.ProtectedPaths, p)
			}
		}
	}

	if flagSet["allow-dir-delete"] {
		cfg.Safety.AllowDirDelete = *allowDirDelete
	}

	if flagSet["extensions"] && *extensions != "" {
		var exts []string
		for _, e := range strings.Split(*extensions, ",") {
			if e = strings.TrimSpace(e); e != "" {
				if !strings.HasPrefix(e, ".") {
					e = "." + e
				}
				exts = append(exts, e)
			}
		}
		cfg.Policy.Extensions = exts
	}

	if flagSet["exclude"] && *exclusions != "" {
		var excl []string
		for _, e := range strings.Split(*exclusions, ",") {
			if e = strings.TrimSpace(e); e != "" {
				excl = append(excl, e)
			}
		}
		cfg.Policy.Exclusions = excl
	}

	if flagSet["categories"] && *categories != "" {
		cfg.Scan.Categories = *categories
	}

	if flagSet["metrics"] {
		cfg.Metrics.Enabled = *enableMetrics
	}
	if flagSet["metrics-addr"] && *metricsAddr != "" {
		cfg.Daemon.MetricsAddr = *metricsAddr
	}

	if flagSet["loki"] {
		if cfg.Logging.Loki == nil {
			cfg.Logging.Loki = &config.LokiConfig{}
		}
		cfg.Logging.Loki.Enabled = *enableLoki
	}
	if flagSet["loki-url"] && *lokiURL != "" {
		if cfg.Logging.Loki == nil {
			cfg.Logging.Loki = &config.LokiConfig{}
		}
		cfg.Logging.Loki.URL = *lokiURL
	}

	if flagSet["auth"] {
		if cfg.Auth == nil {
			cfg.Auth = &config.AuthConfig{}
		}
		cfg.Auth.Enabled = *authEnabled
	}
	if flagSet["auth-key"] && *authKey != "" {
		if cfg.Auth == nil {
			cfg.Auth = &config.AuthConfig{}
		}
		cfg.Auth.Enabled = true
		if cfg.Auth.APIKeys == nil {
			cfg.Auth.APIKeys = &config.APIKeyConfig{Enabled: true}
		}
		cfg.Auth.APIKeys.Enabled = true
		cfg.Auth.APIKeys.Key = *authKey
	}

	if flagSet["pid-file"] && *pidFile != "" {
		cfg.Daemon.PIDFile = *pidFile
	}

	if flagSet["trash-path"] && *trashPath != "" {
		cfg.Execution.TrashPath = *trashPath
	}
}

// initLogger creates a logger based on configuration.
// Returns the logger and an optional cleanup function for Loki.
func initLogger(cfg config.LoggingConfig) (logger.Logger, func(), error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		level = logger.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
	}

	baseLog := logger.New(level, output)

	if cfg.Loki != nil && cfg.Loki.Enabled {
		lokiCfg := logger.LokiConfig{
			URL:       cfg.Loki.URL,
			BatchSize: cfg.Loki.BatchSize,
			BatchWait: cfg.Loki.BatchWait,
			Labels:    cfg.Loki.Labels,
			TenantID:  cfg.Loki.TenantID,
		}
		lokiLog := logger.NewLokiLogger(baseLog, lokiCfg)

		cleanup := func() {
			if err := lokiLog.Close(); err != nil {
				baseLog.Warn("loki shutdown error", logger.F("error", err.Error()))
			}
		}

		return lokiLog, cleanup, nil
	}

	return baseLog, nil, nil
}

// run executes dsklean in one-shot mode (manages its own metrics lifecycle).
func run(cfg *config.Config, log logger.Logger) error {
	var m core.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.NewPrometheus(nil)
		metricsServer = metrics.NewServer(cfg.Daemon.MetricsAddr)

		go func() {
			log.Info("metrics server starting", logger.F("addr", metricsServer.Addr()))
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server error", logger.F("error", err.Error()))
			}
		}()

		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown error", logger.F("error", err.Error()))
			}
		}()
	} else {
		m = metrics.NewNoop()
	}

	_, err := runCore(context.Background(), cfg, log, m, *assumeYes)
	return err
}

// runSummary reports on a single pipeline pass, used to fill in webhook
// notification summaries without re-deriving them from the audit log.
type runSummary struct {
	itemsScanned   int
	itemsDeleted   int
	bytesReclaimed int64
}

// categoriesFor maps a config category selector to the concrete set the
// scanner and synthesizer operate over.
func categoriesFor(sel string) core.ScanCategories {
	switch sel {
	case "safe":
		return core.SafeCategories
	case "developer":
		return core.DeveloperCategories
	default:
		return core.AllCategories
	}
}

// runCore executes the scan -> detect -> synthesize -> (clean) pipeline
// once. assumeYes, when false, drives an interactive confirmation prompt
// for deletions whose total size exceeds execution.confirm_over_bytes;
// when true (daemon/-yes mode) that confirmation is skipped.
//
//nolint:gocyclo // Main orchestration function; complexity reflects feature breadth
func runCore(ctx context.Context, cfg *config.Config, log logger.Logger, m core.Metrics, assumeYes bool) (*runSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Execution.Timeout)
	defer cancel()

	var auditLogs []core.AuditLog
	var chain *auditlog.Chain

	if cfg.Execution.AuditPath != "" {
		c, err := auditlog.NewChain(cfg.Execution.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("audit log init failed: %w", err)
		}
		chain = c
		auditLogs = append(auditLogs, c)
		defer func() {
			if err := c.Err(); err != nil {
				log.Warn("audit write error", logger.F("error", err.Error()))
			}
			_ = c.Close()
		}()
	}

	if cfg.Execution.AuditDBPath != "" {
		sink, err := auditlog.NewSQLiteSink(auditlog.SQLiteConfig{Path: cfg.Execution.AuditDBPath})
		if err != nil {
			return nil, fmt.Errorf("audit sqlite init failed: %w", err)
		}
		auditLogs = append(auditLogs, sink)
		log.Info("sqlite audit enabled", logger.Path(cfg.Execution.AuditDBPath))
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn("audit db close error", logger.F("error", err.Error()))
			}
		}()
	}

	var auditLog core.AuditLog
	switch len(auditLogs) {
	case 0:
	case 1:
		auditLog = auditLogs[0]
	default:
		mirrors := auditLogs[1:]
		auditLog = auditlog.NewMulti(chain, mirrors...)
	}

	sec := security.NewWithLogger(security.Config{
		ProtectedPaths:       cfg.Safety.ProtectedPaths,
		AllowedRoots:         cfg.Scan.Roots,
		AllowDirDelete:       cfg.Safety.AllowDirDelete,
		EnforceMountBoundary: cfg.Safety.EnforceMountBoundary,
		MaxFileSizeWarn:      1 << 30,
		MaxConcurrency:       cfg.Scan.MaxConcurrency,
	}, log)
	var aud core.SecurityAuditor = sec
	if !cfg.Execution.EnableSecurityAudit {
		aud = noopAuditor{}
	}

	var cache core.IndexCache
	if cfg.Scan.IndexCachePath != "" {
		store, err := indexcache.Open(indexcache.Config{Path: cfg.Scan.IndexCachePath})
		if err != nil {
			return nil, fmt.Errorf("index cache init failed: %w", err)
		}
		cache = store
		defer store.Close()
	}

	sc := scanner.NewWithRules(scanner.DefaultRules(), log)
	scorer := detector.NewDefaultScorer()

	cats := categoriesFor(cfg.Scan.Categories)

	scanCfg := core.ScanConfig{
		MaxConcurrency:  cfg.Scan.MaxConcurrency,
		FollowSymlinks:  cfg.Scan.FollowSymlinks,
		IncludeHidden:   false,
		MaxFileSizeWarn: 1 << 30,
		Cache:           cache,
		Exclusions:      cfg.Policy.Exclusions,
		MinAgeDays:      cfg.Policy.MinAgeDays,
		MinSizeBytes:    int64(cfg.Policy.MinSizeMB) * 1024 * 1024,
		Scorer:          scorer,
		Auditor:         aud,
	}

	log.Debug("starting scan", logger.F("roots", cfg.Scan.Roots))

	results, err := sc.Scan(ctx, cats, cfg.Scan.Roots, scanCfg)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	if len(cfg.Policy.Extensions) > 0 {
		filterByExtensions(&results, cfg.Policy.Extensions)
	}

	if cats.Contains(core.CategoryDuplicates) {
		det := detector.NewDetector(detector.DuplicateConfig{MaxConcurrency: cfg.Scan.MaxConcurrency, Cache: cache})
		dups, err := det.FindDuplicates(ctx, results.Items)
		if err != nil {
			log.Warn("duplicate detection failed", logger.F("error", err.Error()))
		} else {
			results.Duplicates = dups
		}
	}

	if auditLog != nil {
		for _, item := range results.Items {
			verdict := aud.Audit(ctx, item.Path, core.AuditOptions{ScanRoot: item.Root, MaxFileSizeWarn: scanCfg.MaxFileSizeWarn})
			_ = auditLog.Append(ctx, core.NewScanAuditRecord(results.SessionID, item, verdict))
		}
	}

	synth := synthesizer.NewWithDeps(scorer, log, m)
	recs, err := synth.Synthesize(ctx, results, aud)
	if err != nil {
		return nil, fmt.Errorf("synthesize failed: %w", err)
	}

	printRecommendations(recs, cfg.Execution.Mode, cfg.Scan.Roots, log, cfg.Execution.MaxItems)

	summary := &runSummary{itemsScanned: len(results.Items)}

	if cfg.Execution.Mode == "execute" {
		items := flattenItems(recs)
		if cfg.Execution.MaxDeletionsPerRun > 0 && len(items) > cfg.Execution.MaxDeletionsPerRun {
			log.Warn("capping deletions at max_deletions_per_run",
				logger.F("limit", cfg.Execution.MaxDeletionsPerRun),
				logger.F("eligible", len(items)),
			)
			items = items[:cfg.Execution.MaxDeletionsPerRun]
		}

		var trashMgr *trash.Manager
		if cfg.Execution.TrashPath != "" {
			trashMgr, err = trash.New(trash.Config{
				TrashPath: cfg.Execution.TrashPath,
				MaxAge:    cfg.Execution.TrashMaxAge,
			}, log)
			if err != nil {
				return summary, fmt.Errorf("failed to initialize trash manager: %w", err)
			}
			log.Info("soft-delete enabled", logger.F("trash_path", cfg.Execution.TrashPath))
		}

		var backupProvider core.BackupProvider
		if cfg.Execution.BackupBeforeDelete && cfg.Execution.BackupPath != "" {
			backupProvider, err = backup.New(backup.Config{Root: cfg.Execution.BackupPath}, log)
			if err != nil {
				return summary, fmt.Errorf("failed to initialize backup provider: %w", err)
			}
		}

		var totalBytes int64
		for _, item := range items {
			totalBytes += item.SizeBytes
		}
		if cfg.Execution.ConfirmOverBytes > 0 && totalBytes > cfg.Execution.ConfirmOverBytes && !assumeYes {
			if !promptYesNo(fmt.Sprintf("This run will delete %d items totaling %s. Continue?", len(items), formatBytesHuman(totalBytes))) {
				log.Info("deletion cancelled by user")
				return summary, nil
			}
		}

		exec := executor.NewWithDeps(aud, auditLog, trashMgr, log, m)
		result, err := exec.Clean(ctx, items, core.CleanOptions{
			DryRun:             false,
			RequireSafetyScore: cfg.Execution.RequireSafetyScore,
			BackupBeforeDelete: cfg.Execution.BackupBeforeDelete,
			BackupProvider:     backupProvider,
			ConcurrencyLimit:   cfg.Execution.ConcurrencyLimit,
			Atomic:             cfg.Execution.Atomic,
			AllowPartialCommit: cfg.Execution.AllowPartialCommit,
		})
		if err != nil {
			return summary, fmt.Errorf("clean failed: %w", err)
		}

		summary.itemsDeleted, summary.bytesReclaimed = summarizeClean(result, log)
	}

	return summary, nil
}

// filterByExtensions drops items whose extension is not in allowed, from
// both the flat Items slice and the per-category buckets.
func filterByExtensions(results *core.ScanResults, allowed []string) {
	set := make(map[string]struct{}, len(allowed))
	for _, e := range allowed {
		set[strings.ToLower(e)] = struct{}{}
	}
	keep := func(item core.CleanableItem) bool {
		if item.Type == core.TargetDir {
			return true
		}
		_, ok := set[strings.ToLower(filepath.Ext(item.Name))]
		return ok
	}

	filtered := results.Items[:0]
	for _, item := range results.Items {
		if keep(item) {
			filtered = append(filtered, item)
		}
	}
	results.Items = filtered

	for cat, items := range results.ByCategory {
		bucket := items[:0]
		for _, item := range items {
			if keep(item) {
				bucket = append(bucket, item)
			}
		}
		results.ByCategory[cat] = bucket
	}
}

// flattenItems collects every recommendation's items into a single slice,
// preserving the priority/reclaim ordering Synthesize already applied.
func flattenItems(recs []core.Recommendation) []core.CleanableItem {
	var items []core.CleanableItem
	for _, rec := range recs {
		items = append(items, rec.Items...)
	}
	return items
}

// summarizeClean logs the outcome of a clean pass and returns counts used
// for webhook summaries.
func summarizeClean(result core.CleanResult, log logger.Logger) (deleted int, bytes int64) {
	outcomes := make(map[core.Outcome]int)
	for _, res := range result.Items {
		outcomes[res.Outcome]++
	}
	deleted = outcomes[core.OutcomeDeleted]
	bytes = result.ReclaimedBytes

	log.Info("execution complete",
		logger.F("transaction_id", result.TransactionID.String()),
		logger.F("deleted", deleted),
		logger.F("bytes_freed", bytes),
		logger.F("skipped_unsafe", outcomes[core.OutcomeSkippedUnsafe]),
		logger.F("skipped_user", outcomes[core.OutcomeSkippedUser]),
		logger.F("failed", outcomes[core.OutcomeFailed]),
		logger.F("already_deleted", outcomes[core.OutcomeAlreadyDeleted]),
		logger.F("rolled_back", outcomes[core.OutcomeRolledBack]+outcomes[core.OutcomeRolledBackPartial]),
	)
	return deleted, bytes
}

// printRecommendations logs a summary of the synthesized recommendations.
func printRecommendations(recs []core.Recommendation, mode string, roots []string, log logger.Logger, limit int) {
	var totalItems int
	var totalBytes int64
	for _, rec := range recs {
		totalItems += len(rec.Items)
		totalBytes += rec.EstimatedReclaim
	}

	log.Info("recommendations ready",
		logger.F("pipeline", mode),
		logger.F("roots", roots),
		logger.F("recommendation_count", len(recs)),
		logger.F("eligible_items", totalItems),
		logger.F("eligible_bytes", totalBytes),
	)

	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	shown := make([]map[string]any, 0, limit)
	for i := 0; i < limit; i++ {
		rec := recs[i]
		shown = append(shown, map[string]any{
			"title":    rec.Title,
			"priority": rec.Priority.String(),
			"items":    len(rec.Items),
			"reclaim":  rec.EstimatedReclaim,
		})
	}
	log.Info("recommendations", logger.F("items", shown))
}

// createNotifier creates a notifier from configuration.
func createNotifier(cfg config.NotificationsConfig, log logger.Logger) notifier.Notifier {
	if len(cfg.Webhooks) == 0 {
		return &notifier.NoopNotifier{}
	}

	multi := notifier.NewMultiNotifier()
	for _, whCfg := range cfg.Webhooks {
		events := make([]notifier.EventType, 0, len(whCfg.Events))
		for _, e := range whCfg.Events {
			events = append(events, notifier.EventType(e))
		}

		wh := notifier.NewWebhook(notifier.WebhookConfig{
			URL:     whCfg.URL,
			Headers: whCfg.Headers,
			Events:  events,
			Timeout: whCfg.Timeout,
		})
		multi.Add(wh)

		log.Info("webhook configured", logger.F("url", whCfg.URL))
	}

	return multi
}

// noopAuditor treats every path as unconditionally safe; wired in only
// when execution.enable_security_audit is explicitly turned off.
type noopAuditor struct{}

func (noopAuditor) Audit(_ context.Context, _ string, _ core.AuditOptions) core.AuditVerdict {
	return core.NewAuditVerdict(core.RiskMinimal, "security_audit_disabled", nil, false)
}

func (n noopAuditor) BatchAudit(ctx context.Context, paths []string, opts core.AuditOptions) []core.AuditVerdict {
	out := make([]core.AuditVerdict, len(paths))
	for i, p := range paths {
		out[i] = n.Audit(ctx, p, opts)
	}
	return out
}

var _ core.SecurityAuditor = noopAuditor{}
