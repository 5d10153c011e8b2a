package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts agent runs by provider.
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_runs_started_total",
		Help: "Total agent runs started",
	}, []string{"provider"})

	// RunsCompleted counts finished runs by outcome (done, error, canceled,
	// max_iterations).
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_runs_completed_total",
		Help: "Total agent runs completed",
	}, []string{"outcome"})

	// RunDuration observes wall time of whole agent runs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_run_duration_seconds",
		Help:    "Agent run duration",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// LoopIterations observes model round trips per run.
	LoopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_loop_iterations",
		Help:    "Model iterations per agent run",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})

	// ToolExecutions counts tool invocations by tool and status.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tool_executions_total",
		Help: "Total tool executions",
	}, []string{"tool", "status"})

	// ToolDuration observes per-tool execution time.
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_tool_duration_seconds",
		Help:    "Tool execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	// ToolRetries counts retry attempts by tool.
	ToolRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tool_retries_total",
		Help: "Total tool execution retries",
	}, []string{"tool"})

	// StreamsActive tracks attached event stream consumers.
	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_streams_active",
		Help: "Currently attached event stream consumers",
	})

	// EventsEmitted counts stream events by type.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_emitted_total",
		Help: "Total stream events emitted",
	}, []string{"type"})

	// ProviderTokens counts token usage by provider and direction.
	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_provider_tokens_total",
		Help: "Total tokens consumed and produced",
	}, []string{"provider", "direction"})
)
