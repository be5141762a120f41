package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/market"
)

// fakeJetStream 記錄發布的訊息，並依照 Nats-Msg-Id 模擬去重
type fakeJetStream struct {
	subjects []string
	payloads [][]byte
	seen     map[string]uint64
	err      error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	// PublishOpt 無法從外部讀取，改由 payload 推導 msg id
	var notice market.WinnerNotice
	if err := json.Unmarshal(payload, &notice); err != nil {
		return nil, err
	}
	id := MessageID(notice)
	if seq, ok := f.seen[id]; ok {
		return &jetstream.PubAck{Stream: "WINNERS", Sequence: seq, Duplicate: true}, nil
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)
	f.seen[id] = uint64(len(f.payloads))
	return &jetstream.PubAck{Stream: "WINNERS", Sequence: uint64(len(f.payloads))}, nil
}

func notice() market.WinnerNotice {
	return market.WinnerNotice{
		ProductID:   "p-1",
		ProductName: "Teapot",
		OwnerEmail:  "owner@example.com",
		WinnerName:  "Ana",
		WinnerEmail: "ana@example.com",
		WinningBid:  decimal.RequireFromString("150"),
		ReservedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewNotifier(t *testing.T) {
	_, err := NewNotifier(nil)
	assert.Error(t, err)

	n, err := NewNotifier(&fakeJetStream{}, WithNotifierSubject("custom.subject"))
	require.NoError(t, err)
	assert.Equal(t, "custom.subject", n.subject)
}

func TestNotifier_NotifyWinner(t *testing.T) {
	js := &fakeJetStream{seen: map[string]uint64{}}
	n, err := NewNotifier(js, WithNotifierLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	require.NoError(t, n.NotifyWinner(context.Background(), notice()))
	require.Len(t, js.payloads, 1)
	assert.Equal(t, "auction.winners", js.subjects[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(js.payloads[0], &got))
	assert.Equal(t, "p-1", got["productId"])
	assert.Equal(t, "ana@example.com", got["winnerEmail"])
	assert.Equal(t, "150", got["winningBid"])

	// 重試同一則通知不會產生第二筆訊息
	require.NoError(t, n.NotifyWinner(context.Background(), notice()))
	assert.Len(t, js.payloads, 1)
}

func TestNotifier_PublishFailure(t *testing.T) {
	n, err := NewNotifier(&fakeJetStream{err: errors.New("no responders")})
	require.NoError(t, err)

	err = n.NotifyWinner(context.Background(), notice())
	assert.ErrorContains(t, err, "Fail to publish notice")
	assert.ErrorContains(t, err, "no responders")
}

func TestMessageID(t *testing.T) {
	a := notice()
	b := notice()
	b.ReservedAt = b.ReservedAt.Add(time.Minute)
	assert.Equal(t, MessageID(a), MessageID(notice()))
	assert.NotEqual(t, MessageID(a), MessageID(b))
}
