package redis

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bazaar/market"
)

func TestNewProducer(t *testing.T) {
	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		opts    []ProducerOption[TestMessage]
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid configuration",
			client: newTestClient(""),
			stream: "test-stream",
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "test-stream",
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  newTestClient(""),
			stream:  "",
			wantErr: true,
			errMsg:  "stream cannot be empty",
		},
		{
			name:   "with custom options",
			client: newTestClient(""),
			stream: "test-stream",
			opts: []ProducerOption[TestMessage]{
				WithProducerLogger[TestMessage](slog.Default()),
				WithProducerBufferSize[TestMessage](200),
				WithProducerMaxLen[TestMessage](1000),
				WithProducerParseFunc[TestMessage](func(msg TestMessage) (map[string]any, error) {
					return map[string]any{"test": "value"}, nil
				}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t, goleakOpts...)

			producer, err := NewProducer[TestMessage](tt.client, tt.stream, tt.opts...)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, producer)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, producer)
				producer.Close()
			}

			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func TestProducer_StartStop(t *testing.T) {
	t.Run("multiple start and stop calls", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleakOpts...)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		producer, err := NewProducer[TestMessage](client, "test-stream")
		require.NoError(t, err)

		producer.Start()
		producer.Start() // Should be no-op
		time.Sleep(50 * time.Millisecond)
		producer.Close()
		producer.Close() // Should be no-op
	})
}

func TestProducer_Publish(t *testing.T) {
	t.Run("successful publish", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleakOpts...)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		msg := TestMessage{ID: "1", Data: "test data"}
		msgValues, err := DefaultParseToMessage(msg)
		require.NoError(t, err)

		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "test-stream",
			Values: msgValues,
		}).SetVal("1234-0")

		producer, err := NewProducer[TestMessage](client, "test-stream")
		require.NoError(t, err)

		producer.Start()
		assert.NoError(t, producer.Publish(msg))

		time.Sleep(100 * time.Millisecond)
		producer.Close()
	})

	t.Run("publish before start or after close", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleakOpts...)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		producer, err := NewProducer[TestMessage](client, "test-stream")
		require.NoError(t, err)
		assert.ErrorIs(t, producer.Publish(TestMessage{ID: "1"}), ErrProducerClosed)

		producer.Start()
		producer.Close()
		assert.ErrorIs(t, producer.Publish(TestMessage{ID: "1"}), ErrProducerClosed)
	})

	t.Run("publish with custom parse function error", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleakOpts...)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		producer, err := NewProducer[TestMessage](
			client,
			"test-stream",
			WithProducerParseFunc[TestMessage](func(TestMessage) (map[string]any, error) {
				return nil, fmt.Errorf("parse error")
			}),
		)
		require.NoError(t, err)

		producer.Start()
		assert.Error(t, producer.Publish(TestMessage{}))
		producer.Close()
	})

	t.Run("redis error does not surface to caller", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleakOpts...)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		msg := TestMessage{ID: "1", Data: "test data"}
		msgValues, err := DefaultParseToMessage(msg)
		require.NoError(t, err)

		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "test-stream",
			Values: msgValues,
		}).SetErr(redis.ErrClosed)

		producer, err := NewProducer[TestMessage](client, "test-stream")
		require.NoError(t, err)

		producer.Start()
		assert.NoError(t, producer.Publish(msg))

		time.Sleep(100 * time.Millisecond)
		producer.Close()
	})
}

func TestEventPublisher_TrimsStream(t *testing.T) {
	mr, client := setupMiniredis(t)

	publisher, err := NewEventPublisher(client, "events", WithProducerMaxLen[market.Event](2))
	require.NoError(t, err)
	publisher.Start()

	for i := 0; i < 5; i++ {
		event := sampleEvent()
		event.BidCount = i + 1
		require.NoError(t, publisher.Publish(event))
	}

	// 最後一筆事件寫入後，stream 的長度不會超過上限太多
	assert.Eventually(t, func() bool {
		messages, err := client.XRevRangeN(context.Background(), "events", "+", "-", 1).Result()
		if err != nil || len(messages) == 0 {
			return false
		}
		event, err := DecodeEvent(messages[0].Values)
		return err == nil && event.BidCount == 5
	}, time.Second, 10*time.Millisecond)
	publisher.Close()

	assert.True(t, mr.Exists("events"))
	n, err := client.XLen(context.Background(), "events").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
}

func TestProducer_CloseFlushesPending(t *testing.T) {
	_, client := setupMiniredis(t)

	publisher, err := NewEventPublisher(client, "events", WithProducerFlushTimeout[market.Event](2*time.Second))
	require.NoError(t, err)
	publisher.Start()
	for i := 0; i < 20; i++ {
		require.NoError(t, publisher.Publish(sampleEvent()))
	}
	// Close 回傳前緩衝中的事件都已寫入
	publisher.Close()

	n, err := client.XLen(context.Background(), "events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}
