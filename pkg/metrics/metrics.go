package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crosspost-io/crosspost/internal/common/config"
)

type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	routerCnt       *prometheus.CounterVec
	platformCallCnt *prometheus.CounterVec
	platformCallDur *prometheus.HistogramVec
	postCnt         *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	routerCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "workflow_classifications_total"}, []string{"workflow"})
	platformCallCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "platform_calls_total"}, []string{"platform", "status"})
	platformCallDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "platform_call_duration_seconds", Buckets: cfg.Buckets}, []string{"platform"})
	postCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "posts_published_total"}, []string{"platform", "success"})
	r.MustRegister(routerCnt, platformCallCnt, platformCallDur, postCnt)

	return &Metrics{
		registry:        r,
		namespace:       ns,
		httpReqCnt:      httpReqCnt,
		httpDur:         httpDur,
		httpInfl:        httpInfl,
		routerCnt:       routerCnt,
		platformCallCnt: platformCallCnt,
		platformCallDur: platformCallDur,
		postCnt:         postCnt,
	}
}

func (m *Metrics) RouterClassified(workflow string) {
	m.routerCnt.WithLabelValues(workflow).Inc()
}

func (m *Metrics) PlatformCall(platform string, status int, since time.Time) {
	m.platformCallCnt.WithLabelValues(platform, strconv.Itoa(status)).Inc()
	m.platformCallDur.WithLabelValues(platform).Observe(time.Since(since).Seconds())
}

func (m *Metrics) PostPublished(platform string, success bool) {
	m.postCnt.WithLabelValues(platform, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
