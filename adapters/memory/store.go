package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bazaar/auction"
	"bazaar/market"
)

// Store 是存放在記憶體中的商品儲存層，用於開發環境與測試。
// 與資料庫版本相同，所有寫入都以 version 做 compare-and-swap。
type Store struct {
	mu      sync.RWMutex
	records map[string]auction.Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]auction.Record)}
}

// copyRecord 複製出價紀錄與保留時間，避免呼叫端與儲存層共用同一份資料
func copyRecord(r auction.Record) auction.Record {
	r.Bids = slices.Clone(r.Bids)
	if r.ReservedAt != nil {
		at := *r.ReservedAt
		r.ReservedAt = &at
	}
	return r
}

func (s *Store) Create(_ context.Context, r auction.Record) (auction.Record, error) {
	const op = "Create"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.ID]; exists {
		return auction.Record{}, fmt.Errorf("[%s] Product already exists, id=%s", op, r.ID)
	}
	r.Version = 1
	s.records[r.ID] = copyRecord(r)
	return copyRecord(r), nil
}

func (s *Store) Get(_ context.Context, id string) (auction.Record, error) {
	const op = "Get"
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return auction.Record{}, fmt.Errorf("[%s] id=%s, err=%w", op, id, market.ErrNotFound)
	}
	return copyRecord(r), nil
}

func (s *Store) Update(_ context.Context, prev, next auction.Record) (auction.Record, error) {
	const op = "Update"
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[prev.ID]
	if !ok {
		return auction.Record{}, fmt.Errorf("[%s] id=%s, err=%w", op, prev.ID, market.ErrNotFound)
	}
	if current.Version != prev.Version {
		return auction.Record{}, fmt.Errorf("[%s] id=%s, version=%d, err=%w", op, prev.ID, prev.Version, market.ErrConflict)
	}
	next.ID = prev.ID
	next.Version = prev.Version + 1
	s.records[next.ID] = copyRecord(next)
	return copyRecord(next), nil
}

func (s *Store) Delete(_ context.Context, r auction.Record) error {
	const op = "Delete"
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[r.ID]
	if !ok {
		return fmt.Errorf("[%s] id=%s, err=%w", op, r.ID, market.ErrNotFound)
	}
	if current.Version != r.Version {
		return fmt.Errorf("[%s] id=%s, version=%d, err=%w", op, r.ID, r.Version, market.ErrConflict)
	}
	delete(s.records, r.ID)
	return nil
}

// filter 依結束時間與 ID 排序後回傳符合條件的紀錄副本
func (s *Store) filter(predicate func(auction.Record) bool) []auction.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]auction.Record, 0)
	for _, r := range s.records {
		if predicate(r) {
			out = append(out, copyRecord(r))
		}
	}
	slices.SortFunc(out, func(a, b auction.Record) int {
		if c := a.EndsAt.Compare(b.EndsAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) ListExpiredActive(_ context.Context, now time.Time) ([]auction.Record, error) {
	return s.filter(func(r auction.Record) bool {
		return auction.NeedsSettlement(r, now)
	}), nil
}

func (s *Store) ListPendingNotification(_ context.Context) ([]auction.Record, error) {
	return s.filter(func(r auction.Record) bool {
		return r.IsReservedWinner() && !r.WinnerNotified
	}), nil
}

func (s *Store) ListActive(_ context.Context, now time.Time, page market.Page) ([]auction.Record, int64, error) {
	all := s.filter(func(r auction.Record) bool {
		return r.AuctionEnabled && r.Status == auction.StatusActive && now.Before(r.EndsAt)
	})
	total := int64(len(all))
	start := min(page.Offset(), len(all))
	end := min(start+page.Size, len(all))
	return all[start:end], total, nil
}

func (s *Store) ListReservedFor(_ context.Context, email string) ([]auction.Record, error) {
	email = strings.TrimSpace(email)
	return s.filter(func(r auction.Record) bool {
		return r.IsReservedWinner() && strings.EqualFold(r.BestBidderEmail, email)
	}), nil
}

func (s *Store) AggregateByStatus(_ context.Context) ([]market.StatusAggregate, error) {
	groups := lo.GroupBy(s.filter(func(r auction.Record) bool { return r.AuctionEnabled }), func(r auction.Record) auction.Status {
		return r.Status
	})

	out := make([]market.StatusAggregate, 0, len(groups))
	for _, status := range auction.Statuses {
		records, ok := groups[status]
		if !ok {
			continue
		}
		sum := lo.Reduce(records, func(acc decimal.Decimal, r auction.Record, _ int) decimal.Decimal {
			return acc.Add(r.CurrentPrice)
		}, decimal.Zero)
		out = append(out, market.StatusAggregate{
			Status:       status,
			Count:        int64(len(records)),
			AveragePrice: sum.Div(decimal.NewFromInt(int64(len(records)))),
			TotalBids: lo.SumBy(records, func(r auction.Record) int64 {
				return int64(r.BidCount())
			}),
		})
	}
	return out, nil
}

func (s *Store) CountActive(_ context.Context, now time.Time) (int64, int64, error) {
	var live, expired int64
	for _, r := range s.filter(func(r auction.Record) bool {
		return r.AuctionEnabled && r.Status == auction.StatusActive
	}) {
		if auction.IsExpired(r, now) {
			expired++
		} else {
			live++
		}
	}
	return live, expired, nil
}
