package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	fetchErr  error
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		if r.fetchErr != nil {
			return kafka.Message{}, r.fetchErr
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func confirmationMessage(t *testing.T, offset int64, bookingID string) kafka.Message {
	t.Helper()
	data, err := json.Marshal(ConfirmationPayload{BookingID: bookingID, Email: "ada@example.com"})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(bookingID), Value: data, Offset: offset}
}

func TestConsumer_CommitsAfterHandler(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := &Consumer{reader: reader}

	var seen []int64
	err := c.Consume(context.Background(), func(ctx context.Context, msg kafka.Message) error {
		seen = append(seen, msg.Offset)
		return nil
	})

	require.NoError(t, err, "cancellation ends consumption cleanly")
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumer_HandlerErrorStopsWithoutCommit(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := &Consumer{reader: reader}

	err := c.Consume(context.Background(), func(ctx context.Context, msg kafka.Message) error {
		return errors.New("boom")
	})

	assert.EqualError(t, err, "boom")
	assert.Empty(t, reader.committed)
}

func TestConsumer_FetchError(t *testing.T) {
	reader := &fakeReader{fetchErr: errors.New("broker gone")}
	c := &Consumer{reader: reader}

	err := c.Consume(context.Background(), func(ctx context.Context, msg kafka.Message) error { return nil })
	assert.EqualError(t, err, "broker gone")
}

func TestConsumer_ConsumeConfirmations(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		confirmationMessage(t, 1, "booking-1"),
		{Offset: 2, Key: []byte("booking-2"), Value: []byte("not json")},
		confirmationMessage(t, 3, "booking-3"),
	}}
	c := &Consumer{reader: reader}

	var got []string
	err := c.ConsumeConfirmations(context.Background(), func(ctx context.Context, p ConfirmationPayload) error {
		got = append(got, p.BookingID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"booking-1", "booking-3"}, got)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed, "poison messages are committed")
}

func TestConsumer_Close(t *testing.T) {
	reader := &fakeReader{}
	c := &Consumer{reader: reader}
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)

	var nilConsumer *Consumer
	assert.NoError(t, nilConsumer.Close())
}
