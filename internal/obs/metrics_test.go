package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentLabelsByRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/prelogin/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := Instrument(mux, mux)

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/prelogin/", "201")
	before := testutil.ToFloat64(counter)
	for _, path := range []string{"/api/prelogin/data", "/api/prelogin/nested"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected both datasets under one route label, delta %v", got)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Fatalf("in-flight gauge not released: %v", got)
	}

	// без маршрутизатора путь не попадает в метки
	plain := Instrument(http.NotFoundHandler(), nil)
	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	plain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	if got := testutil.ToFloat64(unmatched) - before; got != 1 {
		t.Fatalf("unmatched delta %v", got)
	}
}

func TestBuildInfo(t *testing.T) {
	InitBuildInfo("1.2.3", "abc123")
	b := CurrentBuild()
	if b.Version != "1.2.3" || b.Commit != "abc123" || b.GoVersion == "" {
		t.Fatalf("unexpected build %+v", b)
	}
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("1.2.3", "abc123", b.GoVersion)); got != 1 {
		t.Fatalf("build_info gauge = %v", got)
	}
	InitBuildInfo("", "")
	if CurrentBuild().Version != "1.2.3" {
		t.Fatal("empty version must not clear the recorded one")
	}
}

func TestAuthCounters(t *testing.T) {
	before := testutil.ToFloat64(tokensIssued.WithLabelValues("login"))
	TokenIssued("login")
	if got := testutil.ToFloat64(tokensIssued.WithLabelValues("login")); got-before != 1 {
		t.Fatalf("tokens issued delta = %v", got-before)
	}

	before = testutil.ToFloat64(authRejections.WithLabelValues("gate"))
	AuthRejected("gate")
	AuthRejected("gate")
	if got := testutil.ToFloat64(authRejections.WithLabelValues("gate")); got-before != 2 {
		t.Fatalf("rejections delta = %v", got-before)
	}

	SetReady(true)
	if testutil.ToFloat64(serviceReady) != 1 {
		t.Fatal("expected ready gauge 1")
	}
	SetReady(false)
	if testutil.ToFloat64(serviceReady) != 0 {
		t.Fatal("expected ready gauge 0")
	}
}

func TestLogWritesJSONLine(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Warn("signup_rollback", map[string]any{"subject": "u1", "level": "ignored", "error": errors.New("boom")})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "signup_rollback" || entry["subject"] != "u1" || entry["error"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("missing ts")
	}
}
