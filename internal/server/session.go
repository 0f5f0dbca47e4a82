package server

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/auth"
)

type sessionKey struct{}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// withSession attaches the caller's session, if any, to the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		session, err := s.auth.Session(r.Context(), token)
		if err != nil {
			s.logger.Warn("session lookup failed", zap.Error(err))
		}
		if session != nil {
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, session))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFrom(r) == nil {
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFrom(r *http.Request) *auth.Session {
	session, _ := r.Context().Value(sessionKey{}).(*auth.Session)
	return session
}
