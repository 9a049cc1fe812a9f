package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tableflow/api/internal/database"
)

const printExchange = "print_jobs"

// AMQPDevice hands receipts to print agents over RabbitMQ. A publish counts
// as printed once the broker confirms it.
type AMQPDevice struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPDevice(url string) *AMQPDevice {
	return &AMQPDevice{url: url}
}

type printMessage struct {
	EntryID     string  `json:"entry_id"`
	TenantID    string  `json:"tenant_id"`
	OrderID     string  `json:"order_id"`
	ReceiptType string  `json:"receipt_type"`
	Text        string  `json:"text"`
	Receipt     Receipt `json:"receipt"`
}

// channel returns an open confirm-mode channel, dialing if needed.
func (d *AMQPDevice) channel() (*amqp.Channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	if d.conn == nil || d.conn.IsClosed() {
		conn, err := amqp.Dial(d.url)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		d.conn = conn
	}
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(printExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	d.ch = ch
	return ch, nil
}

func (d *AMQPDevice) Print(ctx context.Context, e database.PrinterQueueEntry, r Receipt) error {
	body, err := json.Marshal(printMessage{
		EntryID:     e.ID.String(),
		TenantID:    e.TenantID.String(),
		OrderID:     e.OrderID.String(),
		ReceiptType: e.ReceiptType,
		Text:        Render(r),
		Receipt:     r,
	})
	if err != nil {
		return fmt.Errorf("marshal print message: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	routingKey := fmt.Sprintf("%s.%s", e.TenantID, e.ReceiptType)
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		printExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    e.ID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return errors.New("broker nacked print message")
	}
	return nil
}

func (d *AMQPDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil {
		d.ch.Close()
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("WARNING: close amqp connection: %v", err)
			return err
		}
	}
	return nil
}
