package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

// BidResult 是出價成功後回傳給出價者的拍賣狀態
type BidResult struct {
	ProductID     string
	CurrentPrice  decimal.Decimal
	BestBidder    string
	BidCount      int
	TimeRemaining time.Duration
	EndsAt        time.Time
}

// PlaceBid 對指定商品出價。
// 請求本身的欄位會在讀取資料庫之前檢查，之後所有規則都以同一個 now 判斷。
func (s *Service) PlaceBid(ctx context.Context, id string, req auction.BidRequest) (BidResult, error) {
	if err := req.Validate(); err != nil {
		return BidResult{}, err
	}
	now := s.now()
	_, next, err := s.mutate(ctx, id, func(r auction.Record) (auction.Record, error) {
		return auction.PlaceBid(r, req, now)
	})
	if err != nil {
		s.logger.Debug("Bid rejected", slog.String("productId", id), slog.Any("error", err))
		return BidResult{}, err
	}

	s.logger.Info("Bid accepted",
		slog.String("productId", next.ID),
		slog.String("bidder", next.BestBidder),
		slog.String("amount", next.CurrentPrice.StringFixed(2)),
		slog.Int("bidCount", next.BidCount()))
	s.publish(newEvent(EventBidPlaced, next, now))

	return BidResult{
		ProductID:     next.ID,
		CurrentPrice:  next.CurrentPrice,
		BestBidder:    next.BestBidder,
		BidCount:      next.BidCount(),
		TimeRemaining: auction.TimeRemaining(next, now),
		EndsAt:        next.EndsAt,
	}, nil
}

// BidHistory 是商品的出價紀錄與目前狀態，Bids 由新到舊排序
type BidHistory struct {
	ProductID      string
	ProductName    string
	AuctionEnabled bool
	Status         auction.Status
	CurrentPrice   decimal.Decimal
	BestBidder     string
	BidCount       int
	TimeRemaining  time.Duration
	EndsAt         time.Time
	Bids           []auction.Bid
}

// BidHistory 讀取出價紀錄。已到期但尚未結算的拍賣以結算後的狀態呈現，但不會寫回資料庫。
func (s *Service) BidHistory(ctx context.Context, id string) (BidHistory, error) {
	now := s.now()
	r, err := s.get(ctx, id)
	if err != nil {
		return BidHistory{}, err
	}
	view, _ := auction.Resolve(r, now)
	return BidHistory{
		ProductID:      view.ID,
		ProductName:    view.Name,
		AuctionEnabled: view.AuctionEnabled,
		Status:         view.Status,
		CurrentPrice:   view.CurrentPrice,
		BestBidder:     view.BestBidder,
		BidCount:       view.BidCount(),
		TimeRemaining:  auction.TimeRemaining(view, now),
		EndsAt:         view.EndsAt,
		Bids:           view.BidsNewestFirst(),
	}, nil
}
