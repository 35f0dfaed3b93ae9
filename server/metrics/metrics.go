package metrics

import (
	"net/http"
	"sync"

	"github.com/Daskott/sentinel/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "sentinel"

var (
	// SosAlertsCreated counts alert rows written, one per recipient
	SosAlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Subsystem: "sos",
		Name:      "alerts_created_total",
		Help:      "Total sos alerts created",
	})

	// FunctionInvocations labels: function, status (ok, error, rate_limited)
	FunctionInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Subsystem: "functions",
		Name:      "invocations_total",
		Help:      "Total server function invocations",
	}, []string{"function", "status"})

	// SmsSent labels: status (sent, failed)
	SmsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Subsystem: "sms",
		Name:      "messages_total",
		Help:      "Total sos sms notifications attempted",
	}, []string{"status"})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Subsystem: "realtime",
		Name:      "subscriptions",
		Help:      "Open change feed subscriptions",
	}, func() float64 {
		return float64(currentSources().subscriptions())
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Subsystem: "jobs",
		Name:      "enqueued",
		Help:      "Jobs waiting in the queue",
	}, func() float64 {
		stats, err := currentSources().jobs()
		if err != nil {
			return 0
		}
		return float64(stats.EnqueuedJobCount)
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Subsystem: "jobs",
		Name:      "dead",
		Help:      "Jobs that failed too many times",
	}, func() float64 {
		stats, err := currentSources().jobs()
		if err != nil {
			return 0
		}
		return float64(stats.DeadJobCount)
	})
)

type sources struct {
	subscriptions func() int
	jobs          func() (*models.JobsStats, error)
}

var (
	mu     sync.RWMutex
	active = sources{
		subscriptions: func() int { return 0 },
		jobs:          func() (*models.JobsStats, error) { return &models.JobsStats{}, nil },
	}
)

// SetSources wires the gauges to the running server
func SetSources(subscriptions func() int, jobs func() (*models.JobsStats, error)) {
	mu.Lock()
	defer mu.Unlock()

	if subscriptions != nil {
		active.subscriptions = subscriptions
	}
	if jobs != nil {
		active.jobs = jobs
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func currentSources() sources {
	mu.RLock()
	defer mu.RUnlock()
	return active
}
