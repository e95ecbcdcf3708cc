package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORSWildcard(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowAllOrigins: true})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "false" {
		t.Errorf("Allow-Credentials = %q, want false", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Content-Length, X-Request-ID" {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORSAllowedList(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://dash.example.com"}}
	router := newCORSRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// An unlisted origin gets no CORS headers but the request still runs.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unlisted origin = %q, want empty", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowAllOrigins: true})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Preflight status = %d, want 204", w.Code)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		cfg    CORSConfig
		want   bool
	}{
		{"wildcard config", "https://a.example.com", CORSConfig{AllowAllOrigins: true}, true},
		{"listed origin", "https://a.example.com", CORSConfig{AllowedOrigins: []string{"https://a.example.com"}}, true},
		{"case insensitive", "https://A.Example.com", CORSConfig{AllowedOrigins: []string{"https://a.example.com"}}, true},
		{"star entry", "https://b.example.com", CORSConfig{AllowedOrigins: []string{"*"}}, true},
		{"unlisted origin", "https://b.example.com", CORSConfig{AllowedOrigins: []string{"https://a.example.com"}}, false},
		{"empty origin", "", CORSConfig{AllowedOrigins: []string{"https://a.example.com"}}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsOriginAllowed(tc.origin, tc.cfg); got != tc.want {
				t.Errorf("IsOriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}
