package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	dripCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faucet",
		Name:      "drip_count_total",
		Help:      "The total number of confirmed drips",
	}, []string{"chain", "token"})

	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	reqCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faucet",
		Name:      "req_count_total",
		Help:      "The total number of faucet requests",
	}, []string{"chain"})

	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	reqInvalidAddrCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faucet",
		Name:      "req_invalid_addr_count_total",
		Help:      "The total number of failed requests for invalid address",
	})

	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	reqRateLimitedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faucet",
		Name:      "req_rate_limited_count_total",
		Help:      "The total number of requests refused by the per-address limit",
	}, []string{"chain"})

	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	reqErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faucet",
		Name:      "req_error_count_total",
		Help:      "The total number of failed requests for errors during send",
	}, []string{"chain"})

	//nolint:gochecknoglobals // Prometheus metrics are conventionally global
	dailySupply = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "faucet",
		Name:      "daily_limit",
		Help:      "The total amount left of tokens available per day",
	}, []string{"chain"})
)
