package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AuthCookie is set by the login handler and carries an operator token.
const AuthCookie = "authenticated"

// publicPrefixes are reachable without logging in. The kiosk device uses the
// camera and speech sockets.
var publicPrefixes = []string{"/static/", "/css/", "/js/", "/camera", "/speech"}

// Sessions holds the operator tokens issued since startup.
type Sessions struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]struct{})}
}

// Issue creates a new random token.
func (s *Sessions) Issue() string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return token
}

func (s *Sessions) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// AuthMiddleware sprawdza, czy użytkownik ma ważny token w cookie
func AuthMiddleware(sessions *Sessions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(AuthCookie)
		if err != nil || !sessions.Valid(cookie.Value) {
			// Jeśli to zapytanie AJAX/API, zwróć 401
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			// Dla zwykłych żądań przekieruj na login
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublic(path string) bool {
	if path == "/login" || path == "/auth/login" {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
