package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// StartAuditConsumer connects to RabbitMQ, declares the audit queue and
// logs every event it receives. It redials with backoff until ctx is done;
// malformed messages are rejected without requeue to avoid tight loops.
func StartAuditConsumer(ctx context.Context, url string, log *zap.SugaredLogger) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warnw("audit-consumer: dial failed", "error", err, "retry_in", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warnw("audit-consumer: consume loop ended, reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, log *zap.SugaredLogger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warnw("audit-consumer: set QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(AuditQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(AuditQueueName, "", false, false, false, false, nil)
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
            if err := handleMessage(d.Body, log); err != nil {
                log.Warnw("audit-consumer: handle message failed", "error", err)
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(body []byte, log *zap.SugaredLogger) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    fields := []any{"type", ev.Type, "user_id", ev.UserID, "occurred_at", ev.OccurredAt}
    if ev.DeviceID != "" {
        fields = append(fields, "device_id", ev.DeviceID)
    }
    if ev.FileID != 0 {
        fields = append(fields, "file_id", ev.FileID)
    }
    if ev.Count != 0 {
        fields = append(fields, "count", ev.Count)
    }
    log.Infow("audit", fields...)
    return nil
}
