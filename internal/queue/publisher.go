package queue

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends events to the audit queue. It keeps one connection and
// channel open and redials lazily after a failure. Errors are logged and
// returned so callers can ignore them without interrupting the request.
type Publisher struct {
    url string
    log *zap.SugaredLogger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewPublisher(url string, log *zap.SugaredLogger) *Publisher {
    return &Publisher{url: url, log: log}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.closeLocked()
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(2 * time.Second),
    })
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    // durable so messages survive broker restarts
    if _, err := ch.QueueDeclare(AuditQueueName, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// Publish marshals ev and publishes it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
    body, err := json.Marshal(ev)
    if err != nil {
        p.log.Warnw("audit: marshal event failed", "type", ev.Type, "error", err)
        return err
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        p.log.Warnw("audit: broker unavailable", "type", ev.Type, "error", err)
        return err
    }
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
    defer cancel()
    err = ch.PublishWithContext(ctx, "", AuditQueueName, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        p.log.Warnw("audit: publish failed", "type", ev.Type, "error", err)
        p.closeLocked()
        return err
    }
    return nil
}

func (p *Publisher) closeLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.closeLocked()
    return nil
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
