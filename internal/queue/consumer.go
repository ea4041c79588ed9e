package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"
)

// NotificationLog is the file, relative to the log directory, the consumer
// appends to.
const NotificationLog = "notifications.log"

// Consumer drains the notification queue and appends one line per event to
// <dir>/notifications.log.  Actual mail delivery plugs in here.
type Consumer struct {
    url    string
    dir    string
    logger zerolog.Logger
}

func NewConsumer(url, dir string, logger zerolog.Logger) *Consumer {
    if dir == "" {
        dir = "logs"
    }
    return &Consumer{url: url, dir: dir, logger: logger}
}

// Run keeps a consumer attached to the broker, reconnecting with
// exponential backoff, until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("notification-consumer: failed to dial broker")
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.logger.Warn().Err(err).Msg("notification-consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.logger.Warn().Err(err).Msg("notification-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(NotificationQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                c.logger.Error().Err(err).Msg("notification-consumer: handle message failed")
                _ = d.Nack(false, false) // drop, requeueing a bad payload would loop
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends it to the notification log.
func (c *Consumer) Handle(body []byte) error {
    var ev TicketNotificationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Email == "" {
        return errors.New("notification without recipient")
    }
    if err := os.MkdirAll(c.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(filepath.Join(c.dir, NotificationLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(ev.Line()); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    c.logger.Info().Str("email", ev.Email).Str("outcome", ev.Outcome).Strs("tickets", ev.Tickets).Msg("notification recorded")
    return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
