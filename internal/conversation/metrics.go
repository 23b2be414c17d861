package conversation

import "github.com/prometheus/client_golang/prometheus"

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "receptionist",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Latency of language model calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"purpose", "status"})

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Token usage of language model calls",
	}, []string{"purpose", "kind"})

var extractionFallbackTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "booking",
		Name:      "extraction_fallback_total",
		Help:      "Extractions that degraded to the sentinel record",
	})

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(extractionFallbackTotal)
}

func observeLLMCall(purpose string, seconds float64, usage TokenUsage, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(purpose, status).Observe(seconds)
	if usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(purpose, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(purpose, "output").Add(float64(usage.OutputTokens))
	}
}
