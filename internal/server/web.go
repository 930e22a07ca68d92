package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed web
var webFS embed.FS

// uiHandler serves the embedded recorder/list UI.
func uiHandler() http.Handler {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		// The embed is part of the binary; a missing subtree is a build
		// defect, not a runtime condition.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
