package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

var (
	// ErrNotFound 找不到指定的商品
	ErrNotFound = errors.New("product not found")
	// ErrConflict 寫入時 version 已經被其他請求更新
	ErrConflict = errors.New("concurrent update, try again")
	// ErrNotOwner 只有商品擁有者(或管理者)可以執行此操作
	ErrNotOwner = errors.New("only the owner can modify this product")
)

// Page 是列表查詢的分頁參數，Number 從 1 開始
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize 回傳補上預設值並限制上限後的分頁參數
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Offset 回傳這一頁第一筆資料的位置
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// StatusAggregate 是單一狀態的統計結果
type StatusAggregate struct {
	Status       auction.Status
	Count        int64
	AveragePrice decimal.Decimal
	TotalBids    int64
}

// Store 是商品紀錄的持久層。
//
// 所有寫入都以 version 做 compare-and-swap: Update 與 Delete 只在資料庫中的
// version 仍等於 prev.Version 時成功，否則回傳 ErrConflict。
type Store interface {
	// Create 寫入新的商品，version 從 1 開始
	Create(ctx context.Context, r auction.Record) (auction.Record, error)
	// Get 讀取商品與完整的出價紀錄
	Get(ctx context.Context, id string) (auction.Record, error)
	// Update 以 prev.Version 為條件寫入 next，並附加 next 中新增的出價紀錄
	Update(ctx context.Context, prev, next auction.Record) (auction.Record, error)
	// Delete 以 r.Version 為條件刪除商品
	Delete(ctx context.Context, r auction.Record) error

	// ListExpiredActive 列出狀態仍為 active 但已經到期的拍賣
	ListExpiredActive(ctx context.Context, now time.Time) ([]auction.Record, error)
	// ListPendingNotification 列出已保留給得標者但尚未通知的商品，包含舊格式的 ended + reservedForWinner
	ListPendingNotification(ctx context.Context) ([]auction.Record, error)
	// ListActive 依結束時間由近到遠列出進行中且未到期的拍賣
	ListActive(ctx context.Context, now time.Time, page Page) ([]auction.Record, int64, error)
	// ListReservedFor 列出保留給指定 email 得標者的商品
	ListReservedFor(ctx context.Context, email string) ([]auction.Record, error)
	// AggregateByStatus 依狀態統計拍賣商品的數量、平均價格與出價次數
	AggregateByStatus(ctx context.Context) ([]StatusAggregate, error)
	// CountActive 統計 active 拍賣中尚未到期與已到期的數量
	CountActive(ctx context.Context, now time.Time) (live int64, expired int64, err error)
}
