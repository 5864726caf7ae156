package httpapi

import (
	"net/http"

	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/obs"
)

type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// protected runs next only for requests carrying a valid session token. The
// principal is taken from the token alone; organization ids in query strings
// or bodies are never consulted.
func (a *API) protected(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		p, ok := a.tokens.Authorize(r)
		if !ok {
			obs.AuthRejected("token")
			writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), p)
		next(w, r.WithContext(ctx), p)
	})
}
