package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"coursedesk.org/internal/audit"
	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/obs"
)

type loginRequest struct {
	EmailID  string `json:"email_id"`
	Password string `json:"password"`
}

// sessionOrganization is the organization block of login/signup responses.
type sessionOrganization struct {
	auth.Organization
	Role string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := a.sessions.Login(r.Context(), req.EmailID, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.writeSession(w, r, http.StatusOK, "login", "Login successful", sess)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req auth.SignupRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := a.sessions.Signup(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.writeSession(w, r, http.StatusCreated, "signup", "Organization registered successfully", sess)
}

// writeSession returns the token in the body and in the Authorization header.
func (a *API) writeSession(w http.ResponseWriter, r *http.Request, code int, flow, message string, sess auth.Session) {
	obs.TokenIssued(flow)
	ctx := auth.ContextWithPrincipal(r.Context(), sess.Principal)
	_ = audit.LogEvent(ctx, fmt.Sprintf("auth.%s", flow), map[string]any{
		"email_id":   sess.Principal.EmailID,
		"role":       sess.Principal.Role,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})

	org := sessionOrganization{Organization: sess.Organization, Role: sess.Principal.Role}
	if org.EmailID == "" {
		org.EmailID = sess.Principal.EmailID
	}
	w.Header().Set("Authorization", auth.BearerValue(sess.Token))
	writeOK(w, code, map[string]any{
		"message":      message,
		"token":        sess.Token,
		"expires_at":   sess.ExpiresAt.UTC().Format(time.RFC3339),
		"organization": org,
	})
}

func (a *API) handleProtectedRoute(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"message":         fmt.Sprintf("Hello %s, you are authorized!", p.EmailID),
		"organization_id": p.OrganizationID,
	})
}
