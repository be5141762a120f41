package redis

import (
	"io"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"bazaar/auction"
	"bazaar/market"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// redismock 建立的客戶端無法關閉維護通知，其清理 goroutine 在 Close 後仍會存在
var goleakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/maintnotifications.(*CircuitBreakerManager).cleanupLoop"),
}

// newTestClient 建立關閉維護通知的客戶端，與正式環境的設定一致
func newTestClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                     addr,
		MaintNotificationsConfig: &maintnotifications.Config{Mode: maintnotifications.ModeDisabled},
	})
}

func setupTest(t *testing.T) (*redis.Client, redismock.ClientMock, func()) {
	db, mock := redismock.NewClientMock()
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

// setupMiniredis 啟動一個記憶體 Redis，測試結束時自動關閉
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := newTestClient(mr.Addr())
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type TestMessage struct {
	ID   string `msgpack:"id"`
	Data string `msgpack:"data"`
}

var eventTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvent() market.Event {
	return market.Event{
		Type:         market.EventBidPlaced,
		ProductID:    "p-1",
		Status:       auction.StatusActive,
		CurrentPrice: decimal.RequireFromString("110.5"),
		BestBidder:   "Ana",
		BidCount:     2,
		EndsAt:       eventTime.Add(time.Hour),
		At:           eventTime,
	}
}

func sampleNotice() market.WinnerNotice {
	return market.WinnerNotice{
		ProductID:   "p-1",
		ProductName: "Teapot",
		OwnerEmail:  "owner@example.com",
		WinnerName:  "Ana",
		WinnerEmail: "ana@example.com",
		WinningBid:  decimal.RequireFromString("150"),
		ReservedAt:  eventTime,
	}
}
