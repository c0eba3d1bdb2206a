package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Withdrawal lifecycle counters
var (
	WithdrawalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_withdrawals_created_total",
		Help: "Total withdrawal requests submitted",
	})
	WithdrawalsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_withdrawals_approved_total",
		Help: "Total withdrawal requests approved",
	})
	WithdrawalsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_withdrawals_credited_total",
		Help: "Total withdrawal requests credited",
	})
	WithdrawalsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_withdrawals_rejected_total",
		Help: "Total withdrawal requests rejected, refunded or cancelled",
	})
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// DatabaseConnectionsGauge tracks pool state by connection state label
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portal_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)

// ObserveHTTPRequest records one served HTTP request
func ObserveHTTPRequest(method, path string, status int, latency time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).
		Observe(latency.Seconds())
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
