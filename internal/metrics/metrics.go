// Package metrics exposes the bot's Prometheus collectors:
//   - bot_scans_total                     market scan cycles completed
//   - bot_signals_total{type}             signals produced per scan (buy|hold)
//   - bot_positions_open                  current open position count (gauge)
//   - bot_trades_total{action}            orders executed (buy|sell)
//   - bot_exit_decisions_total{reason}    exit engine decisions that executed
//   - bot_cycle_errors_total{cycle}       cycle-level failures (restarted)
//   - bot_daily_realized_loss_usd         running realized loss for the day (gauge)
//
// Served by the control server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_scans_total",
			Help: "Market scan cycles completed",
		},
	)

	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Signals produced by scans",
		},
		[]string{"type"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_positions_open",
			Help: "Open positions tracked by the ledger",
		},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Orders executed",
		},
		[]string{"action"},
	)

	ExitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exit_decisions_total",
			Help: "Executed exit decisions by reason",
		},
		[]string{"reason"},
	)

	CycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_cycle_errors_total",
			Help: "Cycle-level failures that triggered a restart",
		},
		[]string{"cycle"},
	)

	DailyRealizedLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_daily_realized_loss_usd",
			Help: "Realized loss accumulated today",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ScansTotal,
		SignalsTotal,
		PositionsOpen,
		TradesTotal,
		ExitDecisionsTotal,
		CycleErrorsTotal,
		DailyRealizedLoss,
	)
}
