package models

import (
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

// Bid 代表商品的一筆出價紀錄，只會新增不會修改。
// (ProductID, Seq) 唯一，Seq 是出價在紀錄中的位置。
type Bid struct {
	ID          uint            `gorm:"primaryKey"`
	ProductID   string          `gorm:"type:uuid;not null;uniqueIndex:idx_bids_product_seq,priority:1;<-:create"`
	Seq         int             `gorm:"not null;uniqueIndex:idx_bids_product_seq,priority:2;<-:create"`
	BidderName  string          `gorm:"type:varchar(255);not null;<-:create"`
	BidderEmail string          `gorm:"type:varchar(320);not null;index;<-:create"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null;<-:create"`
	PlacedAt    time.Time       `gorm:"not null;<-:create"`
}

func NewBid(productID string, seq int, b auction.Bid) Bid {
	return Bid{
		ProductID:   productID,
		Seq:         seq,
		BidderName:  b.BidderName,
		BidderEmail: b.BidderEmail,
		Amount:      b.Amount,
		PlacedAt:    dbTime(b.PlacedAt),
	}
}

func (b Bid) AuctionBid() auction.Bid {
	return auction.Bid{
		BidderName:  b.BidderName,
		BidderEmail: b.BidderEmail,
		Amount:      b.Amount,
		PlacedAt:    b.PlacedAt.UTC(),
	}
}
