package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jailkeeper_engine_commands_total",
		Help: "Total number of enforcement engine and service control invocations",
	}, []string{"verb", "result"})
	historyEventsImported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jailkeeper_history_events_imported_total",
		Help: "Total number of ban events inserted by log imports",
	})
	ignoreDirectiveWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jailkeeper_ignore_directive_writes_total",
		Help: "Total number of ignore directive regenerations written to disk",
	})
	permanentBansApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jailkeeper_permanent_bans_applied_total",
		Help: "Total number of permanent ban commands issued, by result",
	}, []string{"result"})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jailkeeper_http_request_duration_seconds",
		Help:    "Latency of API requests by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(engineCommandsTotal, historyEventsImported, ignoreDirectiveWrites, permanentBansApplied, httpRequestDuration)
}

// ObserveEngineCommand records one engine or service control call.
func ObserveEngineCommand(verb string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	engineCommandsTotal.WithLabelValues(verb, result).Inc()
}

// AddImported adds n imported history events.
func AddImported(n int) { historyEventsImported.Add(float64(n)) }

// IncIgnoreDirectiveWrite counts a regenerated ignore directive.
func IncIgnoreDirectiveWrite() { ignoreDirectiveWrites.Inc() }

// IncPermanentBan counts one permanent ban command by outcome.
func IncPermanentBan(ok bool) {
	if ok {
		permanentBansApplied.WithLabelValues("ok").Inc()
		return
	}
	permanentBansApplied.WithLabelValues("error").Inc()
}

// ObserveHTTPRequest records one served API request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
