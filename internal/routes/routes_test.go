package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"kioskhelper/internal/middleware"
)

// inRepoRoot runs the test from the module root, where static/ lives.
func inRepoRoot(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestDynamicHTMLHandler(t *testing.T) {
	inRepoRoot(t)

	tests := []struct {
		path     string
		expected int
		contains string
	}{
		{"/login", http.StatusOK, `action="/auth/login"`},
		{"/", http.StatusOK, "/api/view"},
		{"/settings", http.StatusNotFound, ""},
		{"/../go", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = tt.path
		rec := httptest.NewRecorder()
		dynamicHTMLHandler(rec, req)

		if rec.Code != tt.expected {
			t.Errorf("%s: status = %d, expected %d", tt.path, rec.Code, tt.expected)
			continue
		}
		if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
			t.Errorf("%s: body does not contain %q", tt.path, tt.contains)
		}
	}
}

func TestLoginPageIsReachableWithoutCookie(t *testing.T) {
	inRepoRoot(t)

	handler := middleware.AuthMiddleware(middleware.NewSessions(), http.HandlerFunc(dynamicHTMLHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("index without cookie: status %d, location %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("login page status = %d, expected 200", rec.Code)
	}
}
