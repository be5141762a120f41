package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bazaar/auction"
)

// Product 代表市集中的商品，同時保存一般上架資訊以及拍賣狀態。
// Version 是樂觀鎖的版本號，每次寫入成功都會加一。
type Product struct {
	ID                  string          `gorm:"type:uuid;primaryKey;<-:create"`
	OwnerID             string          `gorm:"type:varchar(64);not null;index;<-:create"`
	OwnerEmail          string          `gorm:"type:varchar(320);not null;<-:create"`
	Name                string          `gorm:"type:varchar(255);not null"`
	Category            string          `gorm:"type:varchar(32);not null;index"`
	ImageURL            string          `gorm:"type:text;not null;default:''"`
	Description         string          `gorm:"type:text;not null;default:''"`
	Stock               int             `gorm:"not null;default:0"`
	OriginalPrice       decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CurrentPrice        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	AuctionEnabled      bool            `gorm:"not null;default:false"`
	DurationDays        int             `gorm:"not null;default:0"`
	EndsAt              *time.Time      `gorm:"index:idx_products_status_ends_at,priority:2"`
	MinimumBidIncrement decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	Status              string          `gorm:"type:varchar(16);not null;index:idx_products_status_ends_at,priority:1"`
	BestBidder          string          `gorm:"type:varchar(255);not null;default:''"`
	BestBidderEmail     string          `gorm:"type:varchar(320);not null;default:'';index"`
	BidCount            int             `gorm:"not null;default:0"`
	WinnerNotified      bool            `gorm:"not null;default:false"`
	ReservedForWinner   bool            `gorm:"not null;default:false"`
	ReservedAt          *time.Time
	Version             int64 `gorm:"not null;default:1"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           gorm.DeletedAt `gorm:"index"`

	// 出價紀錄，依 Seq 排序
	Bids []Bid `gorm:"foreignKey:ProductID"`
}

// dbTime 統一以 UTC 並截斷到微秒保存，與 PostgreSQL timestamptz 的精度一致
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := dbTime(*t)
	return &v
}

// NewProduct 將 auction.Record 轉換為資料表的紀錄
func NewProduct(r auction.Record) Product {
	p := Product{
		ID:                  r.ID,
		OwnerID:             r.OwnerID,
		OwnerEmail:          r.OwnerEmail,
		Name:                r.Name,
		Category:            string(r.Category),
		ImageURL:            r.ImageURL,
		Description:         r.Description,
		Stock:               r.Stock,
		OriginalPrice:       r.OriginalPrice,
		CurrentPrice:        r.CurrentPrice,
		AuctionEnabled:      r.AuctionEnabled,
		DurationDays:        r.DurationDays,
		EndsAt:              dbTimePtr(&r.EndsAt),
		MinimumBidIncrement: r.MinimumBidIncrement,
		Status:              string(r.Status),
		BestBidder:          r.BestBidder,
		BestBidderEmail:     r.BestBidderEmail,
		BidCount:            r.BidCount(),
		WinnerNotified:      r.WinnerNotified,
		ReservedForWinner:   r.ReservedForWinner,
		ReservedAt:          dbTimePtr(r.ReservedAt),
		Version:             r.Version,
		CreatedAt:           dbTime(r.CreatedAt),
		UpdatedAt:           dbTime(r.UpdatedAt),
	}
	p.Bids = make([]Bid, len(r.Bids))
	for i, b := range r.Bids {
		p.Bids[i] = NewBid(r.ID, i, b)
	}
	return p
}

// Record 將資料表的紀錄轉換回 auction.Record
func (p Product) Record() auction.Record {
	r := auction.Record{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		OwnerEmail:          p.OwnerEmail,
		Name:                p.Name,
		Category:            auction.Category(p.Category),
		ImageURL:            p.ImageURL,
		Description:         p.Description,
		Stock:               p.Stock,
		OriginalPrice:       p.OriginalPrice,
		CurrentPrice:        p.CurrentPrice,
		AuctionEnabled:      p.AuctionEnabled,
		DurationDays:        p.DurationDays,
		MinimumBidIncrement: p.MinimumBidIncrement,
		Status:              auction.Status(p.Status),
		BestBidder:          p.BestBidder,
		BestBidderEmail:     p.BestBidderEmail,
		WinnerNotified:      p.WinnerNotified,
		ReservedForWinner:   p.ReservedForWinner,
		Version:             p.Version,
		CreatedAt:           p.CreatedAt.UTC(),
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
	if p.EndsAt != nil {
		r.EndsAt = p.EndsAt.UTC()
	}
	if p.ReservedAt != nil {
		at := p.ReservedAt.UTC()
		r.ReservedAt = &at
	}
	if len(p.Bids) > 0 {
		r.Bids = make([]auction.Bid, len(p.Bids))
		for i, b := range p.Bids {
			r.Bids[i] = b.AuctionBid()
		}
	}
	return r
}

// UpdateColumns 回傳 compare-and-swap 更新時要寫入的欄位，建立後不可修改的欄位不在其中
func (p Product) UpdateColumns() map[string]any {
	return map[string]any{
		"name":                  p.Name,
		"category":              p.Category,
		"image_url":             p.ImageURL,
		"description":           p.Description,
		"stock":                 p.Stock,
		"original_price":        p.OriginalPrice,
		"current_price":         p.CurrentPrice,
		"auction_enabled":       p.AuctionEnabled,
		"duration_days":         p.DurationDays,
		"ends_at":               p.EndsAt,
		"minimum_bid_increment": p.MinimumBidIncrement,
		"status":                p.Status,
		"best_bidder":           p.BestBidder,
		"best_bidder_email":     p.BestBidderEmail,
		"bid_count":             p.BidCount,
		"winner_notified":       p.WinnerNotified,
		"reserved_for_winner":   p.ReservedForWinner,
		"reserved_at":           p.ReservedAt,
		"version":               p.Version,
		"updated_at":            p.UpdatedAt,
	}
}
