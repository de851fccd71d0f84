package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the person service.
type Metrics struct {
	registry *prometheus.Registry

	PersonsCreated      prometheus.Counter
	PersonsUpdated      prometheus.Counter
	PersonsDeleted      prometheus.Counter
	PersonalIdConflicts prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

// New creates the metrics on a fresh registry, so that several instances can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PersonsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "person_service_persons_created_total",
			Help: "Total number of persons created",
		}),
		PersonsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "person_service_persons_updated_total",
			Help: "Total number of persons updated",
		}),
		PersonsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "person_service_persons_deleted_total",
			Help: "Total number of persons deleted",
		}),
		PersonalIdConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "person_service_personal_id_conflicts_total",
			Help: "Total number of inserts rejected because the personal id was taken",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "person_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// IncrementPersonsCreated increments the persons created counter by 1
func (m *Metrics) IncrementPersonsCreated() {
	m.PersonsCreated.Inc()
}

// IncrementPersonsUpdated increments the persons updated counter by 1
func (m *Metrics) IncrementPersonsUpdated() {
	m.PersonsUpdated.Inc()
}

// IncrementPersonsDeleted increments the persons deleted counter by 1
func (m *Metrics) IncrementPersonsDeleted() {
	m.PersonsDeleted.Inc()
}

// IncrementPersonalIdConflicts increments the personal id conflict counter by 1
func (m *Metrics) IncrementPersonalIdConflicts() {
	m.PersonalIdConflicts.Inc()
}

// Middleware observes the duration of every request. Unmatched routes are recorded as
// "unmatched" to keep the label cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
