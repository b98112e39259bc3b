//go:build !ui_embed

// Package ui serves the pipeline dashboard. Without the ui_embed build tag
// there is no dashboard and the root redirects to the API docs.
package ui

import (
	"net/http"
)

// Handler redirects every request to the API docs.
func Handler() (http.Handler, error) {
	return http.RedirectHandler("/docs", http.StatusFound), nil
}
