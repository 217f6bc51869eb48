// Package web embeds the dashboard the daemon serves for reviewing scan
// results and recommendations without a separate deploy step.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var dashboardFS embed.FS

// DistFS returns the embedded dashboard filesystem, rooted at dist/.
func DistFS() (fs.FS, error) {
	return fs.Sub(dashboardFS, "dist")
}

// HasDist reports whether a dashboard build was embedded at compile
// time; the daemon falls back to API-only mode when it wasn't.
func HasDist() bool {
	entries, err := fs.ReadDir(dashboardFS, "dist")
	if err != nil {
		return false
	}
	return len(entries) > 0
}
