package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReservationEvent is published on every state change of a booking record.
type ReservationEvent struct {
	Type                  string    `json:"type"`
	BookingID             string    `json:"booking_id"`
	IdempotencyKey        string    `json:"idempotency_key"`
	ListingID             string    `json:"listing_id"`
	UpstreamReservationID string    `json:"upstream_reservation_id,omitempty"`
	ConfirmationCode      string    `json:"confirmation_code,omitempty"`
	Status                string    `json:"status"`
	PaymentStatus         string    `json:"payment_status"`
	Reason                string    `json:"reason,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}

const (
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationFailed    = "reservation_failed"
	EventNeedsReconciliation  = "reservation_needs_reconciliation"
)

type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
	}
}

// Publish writes one JSON message. Messages with the same key land on the
// same partition, so events of one booking stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	log.Printf("published to Kafka - topic: %s, key: %s", topic, key)
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// CheckConnection dials the first broker; used by the readiness probe.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read brokers: %w", err)
	}
	return nil
}
