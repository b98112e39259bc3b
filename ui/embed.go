//go:build ui_embed

// Package ui serves the pipeline dashboard.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// Build with: cd ui && pnpm build && go build -tags ui_embed .
//
//go:embed all:dist
var distFS embed.FS

// Handler serves the embedded dashboard. Unknown extensionless paths get
// index.html so client-side routes survive a reload.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)
		if !exists(fsys, strings.TrimPrefix(p, "/")) && !strings.Contains(path.Base(p), ".") {
			r.URL.Path = "/"
		}
		files.ServeHTTP(w, r)
	}), nil
}

func exists(fsys fs.FS, name string) bool {
	stat, err := fs.Stat(fsys, name)
	return err == nil && !stat.IsDir()
}
