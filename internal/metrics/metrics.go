package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_reservations_total",
			Help: "Reservation batches by result",
		},
		[]string{"result"},
	)

	reservedTickets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_reserved_tickets_total",
			Help: "Tickets moved to pending",
		},
	)

	settledTickets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_settled_tickets_total",
			Help: "Tickets settled by the treasury, by decision and outcome",
		},
		[]string{"decision", "outcome"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_notifications_total",
			Help: "Buyer notifications by outcome tag and delivery status",
		},
		[]string{"outcome", "status"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raffle_batch_duration_seconds",
			Help:    "Duration of reservation and settlement batches",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"operation"},
	)
)

// ObserveReservation records one reservation batch.
func ObserveReservation(result string, tickets int, started time.Time) {
	reservations.WithLabelValues(result).Inc()
	if result == "ok" {
		reservedTickets.Add(float64(tickets))
	}
	batchDuration.WithLabelValues("reserve").Observe(time.Since(started).Seconds())
}

// ObserveSettlement records one settlement batch.
func ObserveSettlement(decision string, processed, skipped int, started time.Time) {
	settledTickets.WithLabelValues(decision, "processed").Add(float64(processed))
	settledTickets.WithLabelValues(decision, "skipped").Add(float64(skipped))
	batchDuration.WithLabelValues("settle").Observe(time.Since(started).Seconds())
}

// ObserveNotification records the delivery attempt of one notification.
func ObserveNotification(outcome string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	notifications.WithLabelValues(outcome, status).Inc()
}
