package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/catalog"
	"coursedesk.org/internal/obs"
	"coursedesk.org/internal/ratelimit"
	"coursedesk.org/internal/storage"
)

const serviceName = "coursedesk-api"

// ReadyProbe — проверка готовности (ping БД и т.п.).
type ReadyProbe interface {
	Check(ctx context.Context) error
}

type noopProbe struct{}

func (noopProbe) Check(context.Context) error { return nil }

// Deps are the services the HTTP layer dispatches to. Storage may be nil when
// object storage is not configured; its routes then answer 503.
type Deps struct {
	Sessions *auth.Service
	Catalog  *catalog.Service
	Storage  *storage.Service
	Limiter  ratelimit.Limiter
	Ready    ReadyProbe
	Version  string
	// MaxUploadBytes caps multipart uploads; defaults to 50 MiB.
	MaxUploadBytes int64
	// MaxBodyBytes caps JSON bodies; defaults to 1 MiB.
	MaxBodyBytes int64
	// AllowedOrigins for CORS in addition to localhost.
	AllowedOrigins []string
	// TrustedProxies (CIDRs or addresses) whose X-Forwarded-For is honoured
	// when keying rate limits.
	TrustedProxies []string
}

// API — HTTP слой.
type API struct {
	mux            *http.ServeMux
	sessions       *auth.Service
	tokens         *auth.TokenService
	catalog        *catalog.Service
	storage        *storage.Service
	limiter        ratelimit.Limiter
	readyProbe     ReadyProbe
	version        string
	maxUploadBytes int64
	maxBodyBytes   int64
	allowedOrigins []string
	proxies        TrustedProxies
	now            func() time.Time
}

func New(d Deps) (*API, error) {
	if d.Sessions == nil || d.Catalog == nil {
		return nil, errors.New("httpapi: sessions and catalog services are required")
	}
	proxies, err := ParseTrustedProxies(d.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		mux:            http.NewServeMux(),
		sessions:       d.Sessions,
		tokens:         d.Sessions.Tokens(),
		catalog:        d.Catalog,
		storage:        d.Storage,
		limiter:        d.Limiter,
		readyProbe:     d.Ready,
		version:        d.Version,
		maxUploadBytes: d.MaxUploadBytes,
		maxBodyBytes:   d.MaxBodyBytes,
		allowedOrigins: d.AllowedOrigins,
		proxies:        proxies,
		now:            time.Now,
	}
	if a.readyProbe == nil {
		a.readyProbe = noopProbe{}
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = 50 << 20
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// сессии
	a.mux.Handle("/api/auth/login", a.rateLimited(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("/api/auth/signup", a.rateLimited(http.HandlerFunc(a.handleSignup)))
	a.mux.Handle("/api/protected-route", a.protected(a.handleProtectedRoute))

	// каталог
	a.mux.Handle("/api/courses", a.protected(a.handleCourses))
	a.mux.Handle("/api/coupons", a.protected(a.handleCoupons))
	a.mux.Handle("/api/category-subcategory", a.protected(a.handleCategories))
	a.mux.Handle("/api/code-subcode", a.protected(a.handleCodeSubcode))
	a.mux.Handle("/api/menus", a.protected(a.handleMenus))
	a.mux.HandleFunc("/api/prelogin/", a.handlePrelogin)

	// файлы
	a.mux.Handle("/api/storage/upload", a.protected(a.handleUpload))
	a.mux.Handle("/api/storage/delete", a.protected(a.handleDelete))
	a.mux.Handle("/api/storage/download", a.protected(a.handleDownload))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})

	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = LoggingJSON(h)
	h = CORS(h, a.allowedOrigins...)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h, a.mux)
}

// Probe exposes the readiness probe for the gRPC health reporter.
func (a *API) Probe() ReadyProbe { return a.readyProbe }

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	build := obs.CurrentBuild()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       a.now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"commit":     build.Commit,
		"go_version": build.GoVersion,
		"storage":    a.storage != nil,
	})
}
