// Package ui holds the templates and static assets of the web interface.
package ui

import "embed"

// Files contains the page templates under templates/ and the static assets under static/.
//
//go:embed templates static
var Files embed.FS
