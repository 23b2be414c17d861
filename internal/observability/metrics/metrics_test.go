package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.ObserveInbound("voice", "ok")
	m.ObserveLatency("voice", 0.5)
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.ObserveInbound("voice", "ok")
	m.ObserveLatency("voice", 0.1)
}
