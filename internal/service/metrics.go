package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inapppay_provision_total",
		Help: "start_pay invocations, labeled by outcome",
	}, []string{"outcome"})

	noticeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inapppay_notice_total",
		Help: "Notice delivery attempts, labeled by notice kind and outcome",
	}, []string{"kind", "outcome"})

	noticeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inapppay_notice_duration_seconds",
		Help:    "Latency of notice POSTs to issuer callbacks",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"kind"})
)
