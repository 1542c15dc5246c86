package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartAuditConsumer connects to RabbitMQ, declares the portal.events
// queue (durable), and starts consuming messages.  Each event is
// appended to logs/audit.log in a single-line, human-friendly format.
// The function runs a reconnect loop with backoff and keeps running
// across broker restarts; processing errors are logged and the
// offending message rejected so the server keeps operating.
func StartAuditConsumer() {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.Printf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.Printf("audit-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("audit-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(lifecycleQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.Consume(lifecycleQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for d := range deliveries {
		if err := appendAuditLine(d.Body); err != nil {
			log.Printf("audit-consumer: process failed: %v", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return fmt.Errorf("delivery channel closed")
}

// appendAuditLine writes one event as a single log line.  Unparseable
// payloads are recorded raw rather than dropped.
func appendAuditLine(body []byte) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join("logs", "audit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var ev LifecycleEvent
	var line string
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		line = fmt.Sprintf("%s raw %s\n", time.Now().UTC().Format(time.RFC3339), body)
	} else {
		line = fmt.Sprintf("%s %s user=%d email=%s actor=%d detail=%s id=%s\n",
			ev.OccurredAt, ev.Type, ev.UserID, ev.Email, ev.Actor, ev.Detail, ev.EventID)
	}
	_, err = f.WriteString(line)
	return err
}
