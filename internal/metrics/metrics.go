package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapmart_orders_created_total",
			Help: "Total number of pickup orders created",
		},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapmart_order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	ReferralsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapmart_referrals_recorded_total",
			Help: "Referrals recorded at signup, by code kind",
		},
		[]string{"kind"},
	)

	RewardsCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapmart_referral_rewards_credited_total",
			Help: "Referral rewards credited",
		},
	)

	CompletionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapmart_completion_retries_total",
			Help: "Retried reward evaluations after order completion",
		},
	)

	CompletionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapmart_completion_failures_total",
			Help: "Reward evaluations that exhausted retries",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapmart_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "code"},
	)
)
