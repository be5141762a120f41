package auction_test

import (
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// liveAuction 建立一個進行中的拍賣，結束時間為 baseTime 之後一天
func liveAuction(price, increment string) auction.Record {
	return auction.Record{
		ID:                  "p-1",
		OwnerID:             "owner-1",
		OwnerEmail:          "owner@example.com",
		Name:                "Vintage camera",
		Category:            auction.CategoryCollectibles,
		Stock:               1,
		OriginalPrice:       dec(price),
		CurrentPrice:        dec(price),
		AuctionEnabled:      true,
		DurationDays:        1,
		EndsAt:              baseTime.Add(24 * time.Hour),
		MinimumBidIncrement: dec(increment),
		Status:              auction.StatusActive,
		Version:             1,
		CreatedAt:           baseTime,
		UpdatedAt:           baseTime,
	}
}

func bid(name string, amount string) auction.BidRequest {
	return auction.BidRequest{
		BidderName:  name,
		BidderEmail: name + "@example.com",
		Amount:      dec(amount),
	}
}
