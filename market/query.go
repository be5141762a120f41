package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bazaar/auction"
)

// StatusStats 是單一狀態的拍賣統計
type StatusStats struct {
	Status       auction.Status  `json:"status"`
	Count        int64           `json:"count"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	TotalBids    int64           `json:"totalBids"`
}

// Stats 是拍賣的整體統計
type Stats struct {
	ByStatus        []StatusStats `json:"byStatus"`
	ActiveLive      int64         `json:"activeLive"`
	ActiveExpired   int64         `json:"activeExpired"`
	NeedsProcessing bool          `json:"needsProcessing"`
	GeneratedAt     time.Time     `json:"generatedAt"`
}

// Stats 統計各狀態的拍賣，並回報是否有已到期但尚未結算的拍賣
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	const op = "Stats"
	now := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
	defer cancel()

	aggregates, err := s.store.AggregateByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("[%s] Fail to aggregate auctions, err=%w", op, err)
	}
	live, expired, err := s.store.CountActive(ctx, now)
	if err != nil {
		return Stats{}, fmt.Errorf("[%s] Fail to count active auctions, err=%w", op, err)
	}

	return Stats{
		ByStatus: lo.Map(aggregates, func(a StatusAggregate, _ int) StatusStats {
			return StatusStats{
				Status:       a.Status,
				Count:        a.Count,
				AveragePrice: auction.Money(a.AveragePrice),
				TotalBids:    a.TotalBids,
			}
		}),
		ActiveLive:      live,
		ActiveExpired:   expired,
		NeedsProcessing: expired > 0,
		GeneratedAt:     now,
	}, nil
}

// ActivePage 是進行中拍賣的一頁結果
type ActivePage struct {
	Items []auction.Record
	Total int64
	Page  Page
}

// ListActive 依結束時間由近到遠列出進行中且尚未到期的拍賣
func (s *Service) ListActive(ctx context.Context, page Page) (ActivePage, error) {
	const op = "ListActive"
	now := s.now()
	page = page.Normalize()
	ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
	defer cancel()

	items, total, err := s.store.ListActive(ctx, now, page)
	if err != nil {
		return ActivePage{}, fmt.Errorf("[%s] Fail to list active auctions, err=%w", op, err)
	}
	return ActivePage{Items: items, Total: total, Page: page}, nil
}

// ListReservedFor 列出保留給指定得標者的商品
func (s *Service) ListReservedFor(ctx context.Context, email string) ([]auction.Record, error) {
	const op = "ListReservedFor"
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &auction.ValidationError{Fields: map[string]string{"email": "is required"}}
	}
	ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
	defer cancel()

	records, err := s.store.ListReservedFor(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list reserved products, err=%w", op, err)
	}
	return records, nil
}
