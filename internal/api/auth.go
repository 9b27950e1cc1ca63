package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bekaIva/instant-ai-translator/internal/auth"
)

// authMiddleware authenticates the bearer token and stores the principal in the context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := s.auth.Authenticate(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		s.logger.Debug("authenticated", "principal", principal.Name, "request_id", middleware.GetReqID(r.Context()))

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects principals holding none of the given scopes.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !principal.HasAnyScope(scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
