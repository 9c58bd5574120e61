// internal/infrastructure/metrics/metrics.go
package metrics

import (
	"time"

	"trading-session-guard/internal/core/domain/jobs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "session_guard"

// Metrics набор метрик сервиса на собственном реестре
type Metrics struct {
	registry *prometheus.Registry

	JobsEnqueued     *prometheus.CounterVec
	JobsSucceeded    *prometheus.CounterVec
	JobsRetried      *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	JobsStalled      *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec

	SessionsTerminated  *prometheus.CounterVec
	TerminationRaceLost prometheus.Counter
	LossWarnings        prometheus.Counter

	SweepRuns         prometheus.Counter
	SweepExpired      prometheus.Counter
	SweepDeleted      prometheus.Counter
	DeadLetterBacklog prometheus.Gauge

	AnalyticsCacheHits   prometheus.Counter
	AnalyticsCacheMisses prometheus.Counter
}

// New создает и регистрирует метрики
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs inserted into the durable queue",
		}, []string{"type"}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_succeeded_total",
			Help:      "Job executions that returned without error",
		}, []string{"type"}),
		JobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Failed job attempts rescheduled with backoff",
		}, []string{"type"}),
		JobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Jobs moved to the dead-letter state",
		}, []string{"type"}),
		JobsStalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stalled_total",
			Help:      "Job attempts that exceeded the handler time budget",
		}, []string{"type"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Successful job handler duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions moved to a terminal status",
		}, []string{"reason"}),
		TerminationRaceLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "termination_race_lost_total",
			Help:      "Terminate calls that found the session already resolved",
		}),
		LossWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loss_warnings_total",
			Help:      "Loss-limit warnings emitted",
		}),

		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Cleanup sweeper runs",
		}),
		SweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_sessions_total",
			Help:      "Sessions expired by the fallback sweep",
		}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_sessions_total",
			Help:      "Old terminal sessions deleted",
		}),
		DeadLetterBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_jobs",
			Help:      "Jobs currently in the dead-letter state",
		}),

		AnalyticsCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_hits_total",
			Help:      "Analytics requests served from cache",
		}),
		AnalyticsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_misses_total",
			Help:      "Analytics requests recomputed",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsEnqueued, m.JobsSucceeded, m.JobsRetried, m.JobsDeadLettered, m.JobsStalled, m.JobDuration,
		m.SessionsTerminated, m.TerminationRaceLost, m.LossWarnings,
		m.SweepRuns, m.SweepExpired, m.SweepDeleted, m.DeadLetterBacklog,
		m.AnalyticsCacheHits, m.AnalyticsCacheMisses,
	)
	return m
}

// Registry реестр для promhttp
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ---- очередь задач ----

func (m *Metrics) JobEnqueued(t jobs.Type) { m.JobsEnqueued.WithLabelValues(string(t)).Inc() }

func (m *Metrics) JobSucceeded(t jobs.Type, d time.Duration) {
	m.JobsSucceeded.WithLabelValues(string(t)).Inc()
	m.JobDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) JobRetried(t jobs.Type) { m.JobsRetried.WithLabelValues(string(t)).Inc() }

func (m *Metrics) JobDeadLettered(t jobs.Type) {
	m.JobsDeadLettered.WithLabelValues(string(t)).Inc()
	m.DeadLetterBacklog.Inc()
}

func (m *Metrics) JobStalled(t jobs.Type) { m.JobsStalled.WithLabelValues(string(t)).Inc() }

// ---- завершение сессий ----

func (m *Metrics) SessionTerminated(reason string) {
	m.SessionsTerminated.WithLabelValues(reason).Inc()
}

func (m *Metrics) TerminationSkipped() { m.TerminationRaceLost.Inc() }

func (m *Metrics) LossWarningEmitted() { m.LossWarnings.Inc() }

// ---- очистка ----

func (m *Metrics) SweepCompleted(expired, deleted int, deadLetters int64) {
	m.SweepRuns.Inc()
	m.SweepExpired.Add(float64(expired))
	m.SweepDeleted.Add(float64(deleted))
	m.DeadLetterBacklog.Set(float64(deadLetters))
}

// ---- аналитика ----

func (m *Metrics) CacheHit() { m.AnalyticsCacheHits.Inc() }

func (m *Metrics) CacheMiss() { m.AnalyticsCacheMisses.Inc() }
