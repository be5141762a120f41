package market_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bazaar/adapters/memory"
	"bazaar/auction"
	"bazaar/market"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeClock 是可以手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// eventRecorder 記錄所有發布的事件
type eventRecorder struct {
	mu     sync.Mutex
	events []market.Event
}

func (r *eventRecorder) Publish(event market.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Types() []market.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]market.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// flakyStore 讓指定次數的 Update 回傳錯誤，並可以在失敗前插入其他寫入
type flakyStore struct {
	*memory.Store
	mu        sync.Mutex
	failures  int
	failWith  error
	failOnly  string
	onFailure func()
}

func (s *flakyStore) Update(ctx context.Context, prev, next auction.Record) (auction.Record, error) {
	s.mu.Lock()
	fail := s.failures > 0 && (s.failOnly == "" || s.failOnly == prev.ID)
	if fail {
		s.failures--
	}
	hook := s.onFailure
	s.mu.Unlock()

	if fail {
		if hook != nil {
			hook()
		}
		return auction.Record{}, s.failWith
	}
	return s.Store.Update(ctx, prev, next)
}

type fixture struct {
	store   *flakyStore
	clock   *fakeClock
	events  *eventRecorder
	service *market.Service
}

func newFixture(t *testing.T, opts ...market.ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		store:  &flakyStore{Store: memory.NewStore(), failWith: market.ErrConflict},
		clock:  &fakeClock{now: baseTime},
		events: &eventRecorder{},
	}
	options := append([]market.ServiceOption{
		market.WithServiceLogger(discardLogger),
		market.WithServiceClock(f.clock.Now),
		market.WithServicePublisher(f.events),
	}, opts...)
	service, err := market.NewService(f.store, options...)
	require.NoError(t, err)
	f.service = service
	return f
}

// seedAuction 直接寫入一個結束時間為 baseTime 之後一天的拍賣
func (f *fixture) seedAuction(t *testing.T, id, price, increment string) auction.Record {
	t.Helper()
	r, err := f.store.Create(context.Background(), auction.Record{
		ID:                  id,
		OwnerID:             "owner-1",
		OwnerEmail:          "owner@example.com",
		Name:                "Item " + id,
		Category:            auction.CategoryArt,
		Stock:               1,
		OriginalPrice:       dec(price),
		CurrentPrice:        dec(price),
		AuctionEnabled:      true,
		DurationDays:        1,
		EndsAt:              baseTime.Add(24 * time.Hour),
		MinimumBidIncrement: dec(increment),
		Status:              auction.StatusActive,
		CreatedAt:           baseTime,
		UpdatedAt:           baseTime,
	})
	require.NoError(t, err)
	return r
}

func bid(name, amount string) auction.BidRequest {
	return auction.BidRequest{BidderName: name, BidderEmail: name + "@example.com", Amount: dec(amount)}
}

func (f *fixture) mustGet(t *testing.T, id string) auction.Record {
	t.Helper()
	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

var afterEnd = baseTime.Add(24*time.Hour + time.Minute)
