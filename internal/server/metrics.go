// Prometheus metrics for the webhook server, served at /metrics in text
// exposition format:
//   - bot_signals_total{outcome}: processed signals (ok|rejected)
//   - bot_orders_total{kind}: order attempts by kind (entry|take_profit|stop_loss)
//   - bot_order_failures_total{kind}: order attempts the exchange rejected
//   - bot_alarms_total: pyramiding alarms sent
package server

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Signals processed",
		},
		[]string{"outcome"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Order attempts",
		},
		[]string{"kind"},
	)

	mtxOrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_failures_total",
			Help: "Order attempts rejected by the exchange",
		},
		[]string{"kind"},
	)

	mtxAlarms = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_alarms_total",
			Help: "Pyramiding alarms sent",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxSignals, mtxOrders, mtxOrderFailures, mtxAlarms)
}
