package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/cargohold/internal/auth"
)

type ctxKey string

const authKey ctxKey = "authentication"

// authenticated resolves the Authorization header into an Authentication
// value and stores it on the request context. Cargo sends the raw token; the
// web UI sends "Bearer <session>". Both forms are accepted.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get("Authorization")
		credential = strings.TrimPrefix(credential, "Bearer ")

		authn, err := s.auth.Authenticate(r.Context(), credential)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), authKey, authn)
		next(w, r.WithContext(ctx))
	})
}

// authFrom returns the Authentication the middleware stored on the context.
func authFrom(r *http.Request) auth.Authentication {
	authn, _ := r.Context().Value(authKey).(auth.Authentication)
	return authn
}
