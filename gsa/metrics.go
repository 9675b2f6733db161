package gsa

import "github.com/prometheus/client_golang/prometheus"

var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsa_login_attempts_total",
			Help: "GSA login attempts by result",
		},
		[]string{"result"},
	)
	appTokenRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsa_app_token_requests_total",
			Help: "App token issuance requests sent to GSA by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(loginAttempts, appTokenRequests)
}
