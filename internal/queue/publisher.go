package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"

    "github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// Publisher sends buyer notifications to the notification queue.  Each
// call dials the broker, so a broker outage only affects the notification
// being sent.
type Publisher struct {
    url    string
    logger zerolog.Logger
    now    func() time.Time
}

func NewPublisher(url string, logger zerolog.Logger) *Publisher {
    return &Publisher{url: url, logger: logger, now: time.Now}
}

// Notify publishes n as a persistent JSON message.  Errors are logged and
// returned; callers treat them as best effort.
func (p *Publisher) Notify(ctx context.Context, n model.Notification) error {
    body, err := json.Marshal(NewTicketNotificationEvent(n, p.now()))
    if err != nil {
        return fmt.Errorf("marshal notification: %w", err)
    }

    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.logger.Error().Err(err).Msg("rabbitmq: dial failed")
        return fmt.Errorf("dial broker: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.logger.Error().Err(err).Msg("rabbitmq: channel open failed")
        return fmt.Errorf("open channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        NotificationQueue,
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,
    ); err != nil {
        p.logger.Error().Err(err).Msg("rabbitmq: queue declare failed")
        return fmt.Errorf("declare queue: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    p.now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", NotificationQueue, false, false, pub); err != nil {
        p.logger.Error().Err(err).Msg("rabbitmq: publish failed")
        return fmt.Errorf("publish notification: %w", err)
    }
    return nil
}
