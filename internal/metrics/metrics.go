// Package metrics collects and exposes Prometheus metrics for the compute
// platform's three host processes (server, worker, hub): monotonic
// counters for things that happen, gauges for instantaneous state, one
// histogram for a latency distribution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric one host process exposes. A server, a
// worker host, and a hub each construct their own Collector; unused fields
// for a given host are simply never touched.
type Collector struct {
	// Job lifecycle counters (server).
	jobsCreated   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsCancelled prometheus.Counter
	jobsStalled   prometheus.Counter

	// Task throughput counters (server + worker).
	tasksDispatched prometheus.Counter
	tasksSubmitted  prometheus.Counter
	tasksExcepted   prometheus.Counter
	tasksCancelled  prometheus.Counter

	// Latency from task dispatch to result submission (worker).
	taskLatency prometheus.Histogram

	// Gauges (instantaneous).
	jobsRunning  prometheus.Gauge
	workersLive  prometheus.Gauge
	reconnecting prometheus.Gauge

	// Hub-specific counters.
	hubRoutesActive prometheus.Gauge
	hubUpstreamDown prometheus.Counter
}

// NewCollector builds and registers a Collector against the default
// Prometheus registry, one collector per host process (a second call
// panics on duplicate registration).
func NewCollector(namespace string) *Collector {
	c := &Collector{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_created_total",
			Help: "Total number of jobs created.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_completed_total",
			Help: "Total number of jobs that reached Complete.",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_cancelled_total",
			Help: "Total number of jobs that reached Cancelled.",
		}),
		jobsStalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_stalled_total",
			Help: "Total number of times a job transitioned into Stalled.",
		}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_dispatched_total",
			Help: "Total number of tasks handed out by requestTask.",
		}),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_submitted_total",
			Help: "Total number of task results submitted.",
		}),
		tasksExcepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_exceptions_total",
			Help: "Total number of task executions that reported an exception.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_cancelled_total",
			Help: "Total number of in-flight tasks cancelled by the Completion Poller.",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_latency_seconds",
			Help:    "Time from task dispatch to result submission, in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jobs_running",
			Help: "Current number of jobs not in a terminal state.",
		}),
		workersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workers_live",
			Help: "Current number of live worker goroutines in this host's pool.",
		}),
		reconnecting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "upstream_reconnecting",
			Help: "1 if the Reconnecting Service Proxy currently has no live connection, else 0.",
		}),
		hubRoutesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "hub_routes_active",
			Help: "Current number of live job->upstream routes held by the hub.",
		}),
		hubUpstreamDown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "hub_upstream_poll_failures_total",
			Help: "Total number of failed aggregated completion-poll attempts against an upstream.",
		}),
	}

	prometheus.MustRegister(
		c.jobsCreated, c.jobsCompleted, c.jobsCancelled, c.jobsStalled,
		c.tasksDispatched, c.tasksSubmitted, c.tasksExcepted, c.tasksCancelled,
		c.taskLatency, c.jobsRunning, c.workersLive, c.reconnecting,
		c.hubRoutesActive, c.hubUpstreamDown,
	)
	return c
}

// RecordJobCreated records a createJob/submitJob call.
func (c *Collector) RecordJobCreated() { c.jobsCreated.Inc() }

// RecordJobCompleted records a job reaching Complete.
func (c *Collector) RecordJobCompleted() { c.jobsCompleted.Inc() }

// RecordJobCancelled records a job reaching Cancelled.
func (c *Collector) RecordJobCancelled() { c.jobsCancelled.Inc() }

// RecordJobStalled records a job transitioning into Stalled.
func (c *Collector) RecordJobStalled() { c.jobsStalled.Inc() }

// RecordTaskDispatched records one requestTask call returning real work.
func (c *Collector) RecordTaskDispatched() { c.tasksDispatched.Inc() }

// RecordTaskSubmitted records a submitted result and its end-to-end
// latency since dispatch.
func (c *Collector) RecordTaskSubmitted(latencySeconds float64) {
	c.tasksSubmitted.Inc()
	c.taskLatency.Observe(latencySeconds)
}

// RecordTaskException records a reportException call.
func (c *Collector) RecordTaskException() { c.tasksExcepted.Inc() }

// RecordTaskCancelled records the Completion Poller cancelling an in-flight
// task.
func (c *Collector) RecordTaskCancelled() { c.tasksCancelled.Inc() }

// SetJobsRunning sets the current non-terminal job count.
func (c *Collector) SetJobsRunning(n int) { c.jobsRunning.Set(float64(n)) }

// SetWorkersLive sets the current live worker-goroutine count.
func (c *Collector) SetWorkersLive(n int) { c.workersLive.Set(float64(n)) }

// SetReconnecting reports whether the host's upstream proxy currently lacks
// a live connection.
func (c *Collector) SetReconnecting(reconnecting bool) {
	if reconnecting {
		c.reconnecting.Set(1)
		return
	}
	c.reconnecting.Set(0)
}

// SetHubRoutesActive sets the hub's current live route count.
func (c *Collector) SetHubRoutesActive(n int) { c.hubRoutesActive.Set(float64(n)) }

// RecordHubUpstreamPollFailure records a failed aggregated completion poll
// against one upstream.
func (c *Collector) RecordHubUpstreamPollFailure() { c.hubUpstreamDown.Inc() }

// Handler returns the promhttp handler for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
