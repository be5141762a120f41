package sse_test

import (
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
	"bazaar/market"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Message 表示一個 SSE 訊息，包含資料字段。
type Message struct {
	Data string `json:"data"`
}

func bidEvent(productID string, count int) market.Event {
	return market.Event{
		Type:         market.EventBidPlaced,
		ProductID:    productID,
		Status:       auction.StatusActive,
		CurrentPrice: decimal.NewFromInt(int64(100 + count)),
		BestBidder:   "Ana",
		BidCount:     count,
		At:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
