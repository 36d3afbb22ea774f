package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cafe24_gateway", Name: "token_refreshes_total", Help: "Number of refresh-token exchanges by outcome."},
		[]string{"outcome"},
	)
	VendorAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cafe24_gateway", Name: "vendor_api_requests_total", Help: "Number of vendor Admin API calls by status class."},
		[]string{"status"},
	)
	VendorAPIRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "cafe24_gateway", Name: "vendor_api_retries_total", Help: "Number of single retries performed after a 401 invalid_token response."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cafe24_gateway", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cafe24_gateway", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(TokenRefreshes)
	reg.MustRegister(VendorAPIRequests)
	reg.MustRegister(VendorAPIRetries)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
