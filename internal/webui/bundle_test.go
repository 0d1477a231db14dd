package webui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bundle, err := FromFS(fstest.MapFS{
		"index.html":    {Data: []byte("<html>app</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	})
	if err != nil {
		t.Fatalf("FromFS: %v", err)
	}
	engine := gin.New()
	engine.NoRoute(func(c *gin.Context) {
		if !bundle.Serve(c) {
			c.Status(http.StatusNotFound)
		}
	})
	return engine
}

func TestServeFallsBackToIndex(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/", http.StatusOK, "<html>app</html>"},
		{http.MethodGet, "/users/42", http.StatusOK, "<html>app</html>"},
		{http.MethodGet, "/assets/app.js", http.StatusOK, "console.log(1)"},
		{http.MethodGet, "/assets/missing.js", http.StatusNotFound, ""},
		{http.MethodGet, "/favicon.ico", http.StatusNotFound, ""},
		{http.MethodPost, "/users", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rec.Code)
		}
		if tc.body != "" && !strings.Contains(rec.Body.String(), tc.body) {
			t.Fatalf("%s %s: unexpected body %q", tc.method, tc.path, rec.Body.String())
		}
	}
}

func TestLoadEmptyDirDisablesUI(t *testing.T) {
	bundle, err := Load("")
	if err != nil || bundle != nil {
		t.Fatalf("expected nil bundle, got %v %v", bundle, err)
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory without index.html")
	}
}
