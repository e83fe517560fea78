package handlers

import (
	"crypto/subtle"
	"net/http"

	"kioskhelper/internal/config"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/middleware"
)

func LoginHandler(cfg *config.Config, sessions *middleware.Sessions, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) != 1 {
			logger.Warning("🔒 Failed login from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}
		// Ustaw cookie z nowym tokenem po poprawnym logowaniu
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookie,
			Value:    sessions.Issue(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
