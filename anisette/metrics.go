package anisette

import "github.com/prometheus/client_golang/prometheus"

var anisetteRefreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "anisette_refreshes_total",
		Help: "Anisette header refreshes by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(anisetteRefreshes)
}
