// Package webui serves a built single page admin UI from disk.
package webui

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bundle exposes web UI assets for serving.
type Bundle struct {
	DistFS     fs.FS        // Root dist filesystem.
	IndexHTML  []byte       // Raw index HTML content.
	fileServer http.Handler // Serves files from DistFS.
}

// Load reads the bundle rooted at dir. An empty dir disables the UI and returns nil.
func Load(dir string) (*Bundle, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	info, errStat := os.Stat(dir)
	if errStat != nil {
		return nil, fmt.Errorf("webui: %w", errStat)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("webui: %s is not a directory", dir)
	}
	return FromFS(os.DirFS(dir))
}

// FromFS builds a bundle from a filesystem holding index.html at its root.
func FromFS(distFS fs.FS) (*Bundle, error) {
	indexHTML, errReadFile := fs.ReadFile(distFS, "index.html")
	if errReadFile != nil {
		return nil, fmt.Errorf("webui: read index.html: %w", errReadFile)
	}
	return &Bundle{
		DistFS:     distFS,
		IndexHTML:  indexHTML,
		fileServer: http.FileServer(http.FS(distFS)),
	}, nil
}

// Serve answers GET/HEAD requests with a static file or the index page so that
// client side routes resolve. It reports false when the request is not for the UI.
func (b *Bundle) Serve(c *gin.Context) bool {
	if b == nil {
		return false
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		return false
	}
	requestPath := c.Request.URL.Path
	cleanedPath := path.Clean("/" + requestPath)
	filePath := strings.TrimPrefix(cleanedPath, "/")
	if filePath != "" {
		fileInfo, errStat := fs.Stat(b.DistFS, filePath)
		if errStat == nil && !fileInfo.IsDir() {
			b.fileServer.ServeHTTP(c.Writer, c.Request)
			return true
		}
		// Missing assets must 404 rather than return the index page.
		if requestPath == "/assets" || strings.HasPrefix(requestPath, "/assets/") || strings.Contains(path.Base(filePath), ".") {
			return false
		}
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", b.IndexHTML)
	return true
}
