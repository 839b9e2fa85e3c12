// Package metrics exposes Prometheus instruments for the security core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "summithq",
		Subsystem: "security",
		Name:      "login_attempts_total",
		Help:      "Login attempts recorded, by outcome.",
	}, []string{"outcome"})

	LockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "summithq",
		Subsystem: "security",
		Name:      "lockouts_total",
		Help:      "Automatic account lockouts triggered by the failure threshold.",
	})

	SessionsTerminatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "summithq",
		Subsystem: "security",
		Name:      "sessions_terminated_total",
		Help:      "Sessions explicitly terminated, self-service or administrative.",
	})

	SuspiciousLoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "summithq",
		Subsystem: "security",
		Name:      "suspicious_logins_total",
		Help:      "Logins flagged by the suspicion detector at record time.",
	})
)
