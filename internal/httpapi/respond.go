package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/catalog"
	"coursedesk.org/internal/identity"
	"coursedesk.org/internal/obs"
	"coursedesk.org/internal/storage"
	"coursedesk.org/internal/store/pg"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes the success envelope: {"success": true, ...fields}.
func writeOK(w http.ResponseWriter, code int, fields map[string]any) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["success"] = true
	writeJSON(w, code, payload)
}

// writeError writes the failure envelope: {"success": false, "error": msg}.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}

// decodeJSON reads a single JSON object. Unknown fields are ignored: clients
// send whole form models, including fields the server derives itself.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return auth.Invalid("Request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return auth.Invalid("Request body too large")
		}
		return auth.Invalid("Invalid JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return auth.Invalid("Unexpected data after JSON body")
	}
	return nil
}

// respondError maps service errors onto the HTTP contract. Anything not
// recognized is an upstream failure: logged, then returned as 500 with the
// upstream's own message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *auth.ValidationError
		credential *auth.CredentialError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, r, http.StatusBadRequest, validation.Message)
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Invalid request")
	case errors.As(err, &credential):
		obs.AuthRejected("credentials")
		writeError(w, r, http.StatusUnauthorized, credential.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.AuthRejected("credentials")
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrOrganizationNotFound):
		obs.AuthRejected("organization_not_found")
		writeError(w, r, http.StatusNotFound, "Organization not found for this user")
	case errors.Is(err, auth.ErrRoleNotFound):
		obs.AuthRejected("role_not_found")
		writeError(w, r, http.StatusNotFound, "User role not found")
	case errors.Is(err, storage.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "Forbidden: File does not belong to your organization")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "File does not exist or cannot be accessed")
	case errors.Is(err, storage.ErrDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "File storage is not configured")
	case errors.Is(err, storage.ErrDeleteFailed):
		writeError(w, r, http.StatusInternalServerError, "Failed to delete file")
	case errors.Is(err, catalog.ErrUnknownPrelogin):
		writeError(w, r, http.StatusNotFound, "Not found")
	default:
		obs.Error("request_failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, upstreamMessage(err))
	}
}

// upstreamMessage digs the human readable text out of database and identity
// provider errors; wrapping prefixes are internal detail.
func upstreamMessage(err error) string {
	var (
		procErr *pg.ProcedureError
		pgErr   *pgconn.PgError
		idErr   *identity.StatusError
	)
	switch {
	case errors.As(err, &procErr) && procErr.Message != "":
		return procErr.Message
	case errors.As(err, &pgErr) && pgErr.Message != "":
		return pgErr.Message
	case errors.As(err, &idErr) && idErr.Message != "":
		return idErr.Message
	case err == nil:
		return "Internal server error"
	}
	return err.Error()
}
