package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 进程级业务指标，init 时注册到默认 Registry，经 /metrics 暴露。
var (
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelforge_predictions_total",
			Help: "Total prediction jobs by kind and terminal status.",
		},
		[]string{"kind", "status"},
	)

	PointsDebitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pixelforge_points_debited_total",
			Help: "Total points debited for prediction submissions.",
		},
	)

	PointsCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelforge_points_credited_total",
			Help: "Total points credited by transaction type.",
		},
		[]string{"type"},
	)

	RedeemAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelforge_redeem_attempts_total",
			Help: "Redeem code attempts by result.",
		},
		[]string{"result"},
	)

	SSEConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixelforge_sse_connections",
			Help: "Currently open SSE event streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PredictionsTotal,
		PointsDebitedTotal,
		PointsCreditedTotal,
		RedeemAttemptsTotal,
		SSEConnections,
	)
}
