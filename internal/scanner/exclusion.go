package scanner

import "path/filepath"

// excluded reports whether path (or its base name) matches any of the
// given glob patterns, using filepath.Match syntax (e.g. "*.important",
// "backup-*"). An excluded entry is skipped entirely: a matched directory
// is neither recorded nor descended into, a matched file is never reported.
func excluded(patterns []string, path, baseName string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, baseName); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
