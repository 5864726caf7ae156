package obs

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coursedesk"

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Requests currently being served.",
	})
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Served requests by method, route and status.",
	}, []string{"method", "route", "status"})
	httpRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Request latency by method and route.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	tokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_tokens_issued_total",
		Help:      "Session tokens issued, by flow (login, signup).",
	}, []string{"flow"})
	authRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Rejected requests at the gate or limiter, by reason.",
	}, []string{"reason"})
	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ready",
		Help:      "1 when the last readiness probe passed.",
	})
	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Constant 1, labelled with the running build.",
	}, []string{"version", "commit", "go_version"})
)

var registerOnce sync.Once

// Init registers collectors with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestSeconds,
			tokensIssued, authRejections, serviceReady, buildInfo,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

var (
	buildMu sync.RWMutex
	current = Build{Version: "dev", Commit: "unknown", GoVersion: runtime.Version()}
)

// InitBuildInfo records the build stamped via ldflags.
func InitBuildInfo(version, commit string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	if version != "" {
		current.Version = version
	}
	if commit != "" {
		current.Commit = commit
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(current.Version, current.Commit, current.GoVersion).Set(1)
}

// CurrentBuild returns what InitBuildInfo recorded.
func CurrentBuild() Build {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return current
}

func TokenIssued(flow string)    { tokensIssued.WithLabelValues(flow).Inc() }
func AuthRejected(reason string) { authRejections.WithLabelValues(reason).Inc() }

// SetReady records the outcome of the last readiness check.
func SetReady(ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	serviceReady.Set(v)
}

// Routes resolves a request to its registered pattern; *http.ServeMux
// satisfies it.
type Routes interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// Instrument counts and times every request, labelled by the pattern routes
// matched rather than the raw path, so unknown URLs cannot grow the label set.
func Instrument(next http.Handler, routes Routes) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		route := "unmatched"
		if routes != nil {
			if _, pattern := routes.Handler(r); pattern != "" {
				route = pattern
			}
		}

		rec := &codeRecorder{ResponseWriter: w}
		began := time.Now()
		next.ServeHTTP(rec, r)

		httpRequestSeconds.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status())).Inc()
	})
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (c *codeRecorder) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *codeRecorder) status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}
