package handlers

import (
	"net/http"

	"kioskhelper/internal/middleware"
)

// LogoutHandler revokes the operator token, clears the cookie and redirects to the login page.
func LogoutHandler(sessions *middleware.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.AuthCookie); err == nil {
			sessions.Revoke(cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:   middleware.AuthCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1, //Deleting cookie
		})

		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}
