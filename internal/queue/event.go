// Package queue carries buyer notifications over RabbitMQ: a publisher
// used by the services after a batch commits and a consumer that records
// every delivered notification.
package queue

import (
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// NotificationQueue is the durable queue both sides declare.
const NotificationQueue = "raffle.notifications"

// TicketNotificationEvent is the wire form of a model.Notification.  It
// carries everything the mail sender needs so it never has to query the
// ticket store.
type TicketNotificationEvent struct {
    Email      string   `json:"email"`
    Name       string   `json:"name"`
    Tickets    []string `json:"tickets"`
    Outcome    string   `json:"outcome"`
    OccurredAt string   `json:"occurred_at"`
}

// NewTicketNotificationEvent stamps n with the time it was emitted.
func NewTicketNotificationEvent(n model.Notification, at time.Time) TicketNotificationEvent {
    tickets := n.Tickets
    if tickets == nil {
        tickets = []string{}
    }
    return TicketNotificationEvent{
        Email:      n.Email,
        Name:       n.Name,
        Tickets:    tickets,
        Outcome:    n.Outcome,
        OccurredAt: at.UTC().Format(time.RFC3339),
    }
}

// Line renders ev as one line of logs/notifications.log.
func (ev TicketNotificationEvent) Line() string {
    return fmt.Sprintf("[%s] Buyer notified | outcome=%s | email=%s | name=%q | tickets=[%s]\n",
        ev.OccurredAt, ev.Outcome, ev.Email, ev.Name, strings.Join(ev.Tickets, ","))
}
