// Package metrics exposes the Prometheus collectors fed by the core's
// progress and mismatch hooks and by the cmd/sshd accept loop:
// accepted sessions, session counts by terminal state, key-exchange
// duration, and algorithm mismatches by slot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsAccepted counts every connection the Listener hands back
	// from Accept, regardless of eventual outcome.
	SessionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sshd",
		Name:      "sessions_accepted_total",
		Help:      "Total TCP connections accepted by the listener.",
	})

	// SessionsByState counts sessions reaching each terminal transport
	// state (authenticating, error, disconnected).
	SessionsByState = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sshd",
		Name:      "sessions_terminal_total",
		Help:      "Sessions reaching a terminal transport state, by state.",
	}, []string{"state"})

	// KexDuration observes wall-clock time from receipt of the peer
	// banner to key activation (progress fraction 0.4 to 1.0).
	KexDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sshd",
		Name:      "kex_duration_seconds",
		Help:      "Duration of the banner-through-NEWKEYS handshake.",
		Buckets:   prometheus.DefBuckets,
	})

	// AlgorithmMismatches counts negotiation failures by slot name
	// (kex, host key, cipher, MAC, compression), per §4.7.
	AlgorithmMismatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sshd",
		Name:      "algorithm_mismatches_total",
		Help:      "Algorithm negotiation failures, by slot.",
	}, []string{"slot"})
)

func init() {
	prometheus.MustRegister(SessionsAccepted, SessionsByState, KexDuration, AlgorithmMismatches)
}

// ProgressObserver returns a ssh.ProgressFunc-shaped closure that
// starts a KexDuration timer on the first call (peer banner received,
// fraction 0.4) and observes it on completion (fraction 1.0).
func ProgressObserver() func(fraction float64) {
	var start time.Time
	return func(fraction float64) {
		switch fraction {
		case 0.4:
			start = time.Now()
		case 1.0:
			if !start.IsZero() {
				KexDuration.Observe(time.Since(start).Seconds())
			}
		}
	}
}

// MismatchObserver returns a ssh.MismatchFunc-shaped closure that
// increments AlgorithmMismatches for the slot named by a failed
// KEXINIT negotiation.
func MismatchObserver() func(slot string) {
	return func(slot string) {
		AlgorithmMismatches.WithLabelValues(slot).Inc()
	}
}
