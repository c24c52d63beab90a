package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of orders cancelled",
	})

	OrderPlacementFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_placement_failed_total",
		Help: "Total number of failed order placements",
	}, []string{"reason"})

	AccountsSuspendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_suspended_total",
		Help: "Total number of accounts flagged for excessive cancellations",
	})
)
