package scanner

import (
	"path/filepath"
	"strings"

	"github.com/dsklean/dsklean/internal/core"
)

// developerJunkDirNames are directory names that, wherever they appear,
// are near-universally regenerable build/dependency output. Kept as an
// externalized table (rather than inline in the walker) so a deployment
// can extend it via Rules.ExtraJunkDirNames without touching code.
var developerJunkDirNames = map[string]struct{}{
	"node_modules": {}, "target": {}, "build": {}, "dist": {},
	"__pycache__": {}, ".gradle": {}, ".m2": {}, "vendor": {},
	".cache": {}, ".tox": {}, ".pytest_cache": {}, ".mypy_cache": {},
	"bin/obj": {}, "obj": {}, ".next": {}, ".nuxt": {},
}

// buildArtifactExtensions are file extensions that are compiler/linker
// output rather than source, independent of which directory they sit in.
var buildArtifactExtensions = map[string]struct{}{
	".o": {}, ".obj": {}, ".class": {}, ".pyc": {}, ".pdb": {},
}

var tempFileExtensions = map[string]struct{}{
	".tmp": {}, ".temp": {}, ".bak": {}, ".swp": {}, ".swo": {}, ".crdownload": {}, ".part": {},
}

var logFileExtensions = map[string]struct{}{
	".log": {},
}

var cacheDirNames = map[string]struct{}{
	".cache": {}, "Caches": {}, "cache": {},
}

// Rules holds the configurable classification inputs for the scanner.
type Rules struct {
	ExtraJunkDirNames   []string
	LargeFileThreshold  int64 // bytes; 0 disables large-file tagging
}

// DefaultRules returns the built-in classification rules with a 1 GiB
// large-file threshold.
func DefaultRules() Rules {
	return Rules{LargeFileThreshold: 1 << 30}
}

// classify assigns a Category to path based on its name, extension, and
// ancestor directory names. ok is false when nothing matched and the
// entry should be skipped from results entirely.
func (r Rules) classify(path string, name string, isDir bool, sizeBytes int64) (core.Category, bool) {
	ext := strings.ToLower(filepath.Ext(name))

	if isDir {
		if _, ok := developerJunkDirNames[name]; ok {
			return core.CategoryDeveloperJunk, true
		}
		for _, extra := range r.ExtraJunkDirNames {
			if name == extra {
				return core.CategoryDeveloperJunk, true
			}
		}
		if _, ok := cacheDirNames[name]; ok {
			return core.CategoryUserCaches, true
		}
		return "", false
	}

	for _, comp := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if _, ok := developerJunkDirNames[comp]; ok {
			return core.CategoryDeveloperJunk, true
		}
		for _, extra := range r.ExtraJunkDirNames {
			if comp == extra {
				return core.CategoryDeveloperJunk, true
			}
		}
	}

	if _, ok := buildArtifactExtensions[ext]; ok {
		return core.CategoryBuildArtifacts, true
	}
	if _, ok := tempFileExtensions[ext]; ok {
		return core.CategoryTemporaryFiles, true
	}
	if _, ok := logFileExtensions[ext]; ok {
		return core.CategoryLogs, true
	}
	if r.LargeFileThreshold > 0 && sizeBytes >= r.LargeFileThreshold {
		return core.CategoryLargeFiles, true
	}
	return "", false
}
