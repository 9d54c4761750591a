package kafka

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader messageReader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads until ctx is done or handler fails. A message is committed
// only after its handler returned nil, so a crash redelivers it.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// ConsumeConfirmations decodes each message as a ConfirmationPayload.
// Undecodable messages are logged and committed.
func (c *Consumer) ConsumeConfirmations(ctx context.Context, handle func(context.Context, ConfirmationPayload) error) error {
	return c.Consume(ctx, func(ctx context.Context, msg kafka.Message) error {
		payload, err := DecodeConfirmation(msg)
		if err != nil {
			log.Printf("WARNING: skip undecodable confirmation at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			return nil
		}
		return handle(ctx, payload)
	})
}
