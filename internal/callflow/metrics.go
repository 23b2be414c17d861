package callflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "calls",
		Name:      "started_total",
		Help:      "Number of new call sessions created.",
	})

	callsEndedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "calls",
		Name:      "ended_total",
		Help:      "Number of calls reaching a terminal outcome, by outcome tag.",
	}, []string{"outcome"})

	emergencyFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "calls",
		Name:      "emergency_flagged_total",
		Help:      "Number of utterances that tripped the emergency classifier.",
	})

	confirmationSMSTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "receptionist",
		Subsystem: "calls",
		Name:      "confirmation_sms_total",
		Help:      "Confirmation SMS delivery attempts, by result.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		callsStartedTotal,
		callsEndedTotal,
		emergencyFlaggedTotal,
		confirmationSMSTotal,
	)
}
