package workers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pool's prometheus collectors.
type Metrics struct {
	registry     prometheus.Registerer
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	runningTasks prometheus.Gauge
	circuitTrips *prometheus.CounterVec
}

// InitMetrics registers the pool collectors. A nil registerer uses the
// default prometheus registry.
func InitMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_tasks_total",
				Help:      "Total number of pool tasks by terminal status",
			},
			[]string{"status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pool_task_duration_seconds",
				Help:      "Duration of pool tasks",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_queue_depth",
				Help:      "Number of tasks waiting in the queue",
			},
		),
		runningTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_running_tasks",
				Help:      "Number of tasks currently executing",
			},
		),
		circuitTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_circuit_trips_total",
				Help:      "Circuit breaker trips by agent",
			},
			[]string{"agent_id"},
		),
	}

	reg.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.queueDepth,
		m.runningTasks,
		m.circuitTrips,
	)

	return m
}

// RecordTask observes one terminal task outcome.
func (m *Metrics) RecordTask(status string, duration time.Duration) {
	m.tasksTotal.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetRunning updates the running tasks gauge.
func (m *Metrics) SetRunning(n int) {
	m.runningTasks.Set(float64(n))
}

// RecordCircuitTrip counts one breaker trip for an agent.
func (m *Metrics) RecordCircuitTrip(agentID string) {
	m.circuitTrips.WithLabelValues(agentID).Inc()
}
