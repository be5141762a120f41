//go:generate mockgen -package=market -destination=mock.go -source=events.go

package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

// EventType 是拍賣即時事件的種類
type EventType string

const (
	EventBidPlaced       EventType = "bid_placed"
	EventAuctionReserved EventType = "auction_reserved"
	EventAuctionEnded    EventType = "auction_ended"
	EventWinnerNotified  EventType = "winner_notified"
)

// Event 是提交成功後對外廣播的拍賣事件
type Event struct {
	Type         EventType       `json:"type"`
	ProductID    string          `json:"productId"`
	Status       auction.Status  `json:"status"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	BestBidder   string          `json:"bestBidder,omitempty"`
	BidCount     int             `json:"bidCount"`
	EndsAt       time.Time       `json:"endsAt"`
	At           time.Time       `json:"at"`
}

func newEvent(t EventType, r auction.Record, at time.Time) Event {
	return Event{
		Type:         t,
		ProductID:    r.ID,
		Status:       r.Status,
		CurrentPrice: r.CurrentPrice,
		BestBidder:   r.BestBidder,
		BidCount:     r.BidCount(),
		EndsAt:       r.EndsAt,
		At:           at,
	}
}

// IPublisher 負責將事件送往即時通道，失敗不影響已經提交的寫入
type IPublisher interface {
	Publish(event Event) error
}

// WinnerNotice 是交給通知服務的得標資訊
type WinnerNotice struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	OwnerEmail  string          `json:"ownerEmail"`
	WinnerName  string          `json:"winnerName"`
	WinnerEmail string          `json:"winnerEmail"`
	WinningBid  decimal.Decimal `json:"winningBid"`
	ReservedAt  time.Time       `json:"reservedAt"`
}

func newWinnerNotice(r auction.Record) WinnerNotice {
	notice := WinnerNotice{
		ProductID:   r.ID,
		ProductName: r.Name,
		OwnerEmail:  r.OwnerEmail,
		WinnerName:  r.BestBidder,
		WinnerEmail: r.BestBidderEmail,
		WinningBid:  r.CurrentPrice,
	}
	if r.ReservedAt != nil {
		notice.ReservedAt = *r.ReservedAt
	}
	return notice
}

// INotifier 將得標通知交給外部的通知服務(email、訊息佇列等)
type INotifier interface {
	NotifyWinner(ctx context.Context, notice WinnerNotice) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) error { return nil }

// LogNotifier 只把得標通知寫進日誌，用於開發環境
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("caller", "LogNotifier"))}
}

func (n *LogNotifier) NotifyWinner(_ context.Context, notice WinnerNotice) error {
	n.logger.Info("Winner notification",
		slog.String("productId", notice.ProductID),
		slog.String("product", notice.ProductName),
		slog.String("winner", notice.WinnerName),
		slog.String("winnerEmail", notice.WinnerEmail),
		slog.String("winningBid", notice.WinningBid.StringFixed(2)),
	)
	return nil
}
