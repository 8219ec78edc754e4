package services

import "github.com/prometheus/client_golang/prometheus"

var (
	challengeEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_evaluations_total",
			Help: "Challenge evaluation outcomes by resulting status",
		},
		[]string{"result"},
	)
	challengeRewardsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_rewards_issued_total",
			Help: "Points awards confirmed by the reward ledger",
		},
	)
	generatorFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_generator_fallback_total",
			Help: "Generation requests served from fallback templates",
		},
	)
)

// InitMetrics registers the engine metrics. Call once from main.go.
func InitMetrics() {
	prometheus.MustRegister(challengeEvaluationsTotal)
	prometheus.MustRegister(challengeRewardsIssuedTotal)
	prometheus.MustRegister(generatorFallbackTotal)
}
