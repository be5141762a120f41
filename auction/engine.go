package auction

import (
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BidRequest 是一次出價的輸入
type BidRequest struct {
	BidderName  string
	BidderEmail string
	Amount      decimal.Decimal
}

// Validate 檢查出價請求本身的欄位，不需要讀取商品
func (req BidRequest) Validate() error {
	v := validator{}
	v.check(strings.TrimSpace(req.BidderName) != "", "bidderName", "is required")
	v.check(strings.TrimSpace(req.BidderEmail) != "", "bidderEmail", "is required")
	if _, exists := v["bidderEmail"]; !exists {
		_, err := mail.ParseAddress(strings.TrimSpace(req.BidderEmail))
		v.check(err == nil, "bidderEmail", "must be a valid email address")
	}
	v.check(req.Amount.IsPositive(), "bidAmount", "must be a positive number")
	v.check(req.Amount.Equal(Money(req.Amount)), "bidAmount", "must have at most 2 decimal places")
	return v.err()
}

// PlaceBid 依序檢查出價規則，成功時回傳附加了新出價的 Record。
//
// 檢查順序:
//  1. 商品必須啟用拍賣、尚未到期且有庫存，否則 ErrNotBiddable
//  2. 狀態必須為 active，否則 ErrAuctionClosed
//  3. 出價者不能是商品擁有者，否則 ErrSelfBidForbidden
//  4. 金額必須大於 0 且不低於目前價格加上最小加價幅度，否則 *BidTooLowError
//
// 已經離開 active 的商品(例如結算後)即使也已過期，仍回報 ErrAuctionClosed，
// 與結算競爭失敗的出價看到的是拍賣已關閉。
//
// 這是拍賣商品 currentPrice 唯一會改變的途徑。
func PlaceBid(r Record, req BidRequest, now time.Time) (Record, error) {
	if !r.AuctionEnabled || r.Stock <= 0 || (r.Status == StatusActive && IsExpired(r, now)) {
		return r, ErrNotBiddable
	}
	if r.Status != StatusActive {
		return r, ErrAuctionClosed
	}
	if r.IsOwner(req.BidderEmail) {
		return r, ErrSelfBidForbidden
	}
	amount := Money(req.Amount)
	minimum := MinimumNextBid(r)
	if !amount.IsPositive() || amount.LessThan(minimum) {
		return r, &BidTooLowError{Amount: amount, Minimum: minimum}
	}

	out := r.touch(now)
	out.Bids = append(out.Bids, Bid{
		BidderName:  strings.TrimSpace(req.BidderName),
		BidderEmail: strings.TrimSpace(req.BidderEmail),
		Amount:      amount,
		PlacedAt:    now,
	})
	out.CurrentPrice = amount
	out.BestBidder = strings.TrimSpace(req.BidderName)
	out.BestBidderEmail = strings.TrimSpace(req.BidderEmail)
	return out, nil
}
