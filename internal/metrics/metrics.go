package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabnotes"

var requestLabels = []string{"method", "route", "code"}

// httpCollectors holds the REST request metrics.
type httpCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	bodyIn   *prometheus.HistogramVec
	bodyOut  *prometheus.HistogramVec
}

func newHTTPCollectors(reg prometheus.Registerer) *httpCollectors {
	f := promauto.With(reg)
	sizes := prometheus.ExponentialBuckets(128, 4, 7)
	return &httpCollectors{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests served, by route and status code",
		}, requestLabels),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Time to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, requestLabels),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
			Help: "HTTP requests currently being served",
		}),
		bodyIn: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_size_bytes",
			Help: "Declared request body sizes", Buckets: sizes,
		}, requestLabels),
		bodyOut: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "response_size_bytes",
			Help: "Bytes written in response bodies", Buckets: sizes,
		}, requestLabels),
	}
}

var httpMetrics = newHTTPCollectors(prometheus.DefaultRegisterer)

// statusWriter remembers the status code and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	code    int
	written int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var errNoHijack = errors.New("metrics: response writer cannot be hijacked")

// Hijack lets WebSocket upgrades pass through.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNoHijack
	}
	// a hijacked connection reports as switching protocols
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// route labels by chi pattern ("/api/v1/notes/{id}/") so note ids stay out of
// label values.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Middleware observes every request once it has been routed.
func Middleware() func(http.Handler) http.Handler {
	m := httpMetrics
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			next.ServeHTTP(sw, r)

			if sw.code == 0 {
				sw.code = http.StatusOK
			}
			labels := prometheus.Labels{
				"method": r.Method,
				"route":  route(r),
				"code":   strconv.Itoa(sw.code),
			}
			m.requests.With(labels).Inc()
			m.duration.With(labels).Observe(time.Since(start).Seconds())
			m.bodyOut.With(labels).Observe(float64(sw.written))
			if r.ContentLength > 0 {
				m.bodyIn.With(labels).Observe(float64(r.ContentLength))
			}
		})
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
