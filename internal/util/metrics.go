package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payment orders created",
	})

	PaymentInitiationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiations_failed_total",
		Help: "Total number of failed payment initiations",
	}, []string{"reason"})

	PaymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Total number of orders confirmed paid",
	})

	PaymentNotifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_notify_total",
		Help: "Payment notifications by outcome",
	}, []string{"outcome"})

	ReconciliationInconsistenciesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_inconsistencies_total",
		Help: "Orders marked paid whose registration update failed",
	})

	RegistrationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrations_created_total",
		Help: "Total number of registrations created",
	})

	RegistrationsHealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrations_healed_total",
		Help: "Stale registrations repaired by the reconciliation worker",
	})

	ProviderRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_request_latency_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
