package auction

import (
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxNameLength = 255

// Policy 是可以透過設定調整的拍賣參數範圍
type Policy struct {
	MinIncrementFloor   decimal.Decimal
	MinIncrementCeiling decimal.Decimal
	MinDurationDays     int
	MaxDurationDays     int
}

// DefaultPolicy 回傳預設的拍賣參數範圍: 最小加價 0.01~1000，拍賣天數 1~30
func DefaultPolicy() Policy {
	return Policy{
		MinIncrementFloor:   decimal.RequireFromString("0.01"),
		MinIncrementCeiling: decimal.NewFromInt(1000),
		MinDurationDays:     1,
		MaxDurationDays:     30,
	}
}

// AuctionSettings 是建立或修改拍賣時的設定，DurationDays 與 EndsAt 擇一即可，
// 兩者同時存在時以 EndsAt 為準。
type AuctionSettings struct {
	DurationDays        int
	EndsAt              *time.Time
	MinimumBidIncrement *decimal.Decimal
}

// NewListing 是建立商品所需的資訊
type NewListing struct {
	OwnerID     string
	OwnerEmail  string
	Name        string
	Category    string
	ImageURL    string
	Description string
	Stock       int
	Price       decimal.Decimal
	Auction     *AuctionSettings
}

// New 驗證並建立新的商品
func New(id string, in NewListing, policy Policy, now time.Time) (Record, error) {
	v := validator{}
	v.check(strings.TrimSpace(in.OwnerID) != "", "ownerId", "is required")
	validEmail(v, "ownerEmail", in.OwnerEmail)
	validName(v, in.Name)
	category, ok := ParseCategory(in.Category)
	v.check(ok, "category", "must be one of the supported categories")
	validImageURL(v, in.ImageURL)
	v.check(in.Stock >= 0, "stock", "must not be negative")
	v.check(!in.Price.IsNegative(), "price", "must not be negative")

	r := Record{
		ID:            id,
		OwnerID:       strings.TrimSpace(in.OwnerID),
		OwnerEmail:    strings.TrimSpace(in.OwnerEmail),
		Name:          strings.TrimSpace(in.Name),
		Category:      category,
		ImageURL:      strings.TrimSpace(in.ImageURL),
		Description:   in.Description,
		Stock:         in.Stock,
		OriginalPrice: Money(in.Price),
		CurrentPrice:  Money(in.Price),
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Auction != nil {
		v.check(in.Stock > 0, "stock", "must be at least 1 for an auction")
		applyAuctionSettings(v, &r, *in.Auction, policy, now)
	}
	if err := v.err(); err != nil {
		return Record{}, err
	}
	if r.Stock == 0 {
		r.Status = StatusSold
	}
	return r, nil
}

// Patch 是擁有者可以修改的欄位。出價相關欄位(出價紀錄、最高出價者、狀態、
// 通知與保留旗標)不在其中，因此任何額外欄位在解碼時就會被忽略。
type Patch struct {
	Name                *string
	Category            *string
	ImageURL            *string
	Description         *string
	Stock               *int
	Price               *decimal.Decimal
	AuctionEnabled      *bool
	DurationDays        *int
	EndsAt              *time.Time
	MinimumBidIncrement *decimal.Decimal
}

// ApplyPatch 套用擁有者的修改，回傳新的 Record 以及被忽略的欄位。
//   - 已保留、已售出或已取消的商品只能修改 description 與 image
//   - 已經有人出價後，價格、庫存與拍賣設定都會被凍結
//   - 沒有人出價而結束的拍賣設定新的結束時間後會重新開始
func ApplyPatch(r Record, p Patch, policy Policy, now time.Time) (Record, []string, error) {
	var ignored []string
	locked := r.Status == StatusReserved || r.Status == StatusSold || r.Status == StatusCancelled || r.ReservedForWinner
	frozen := locked || r.BidCount() > 0
	strip := func(set bool, field string, when bool) bool {
		if set && when {
			ignored = append(ignored, field)
			return false
		}
		return set
	}

	v := validator{}
	out := r.touch(now)
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.ImageURL != nil {
		validImageURL(v, *p.ImageURL)
		out.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	if strip(p.Name != nil, "name", locked) {
		validName(v, *p.Name)
		out.Name = strings.TrimSpace(*p.Name)
	}
	if strip(p.Category != nil, "category", locked) {
		category, ok := ParseCategory(*p.Category)
		v.check(ok, "category", "must be one of the supported categories")
		out.Category = category
	}
	if strip(p.Stock != nil, "stock", frozen) {
		v.check(*p.Stock >= 0, "stock", "must not be negative")
		out.Stock = *p.Stock
	}
	if strip(p.Price != nil, "price", frozen) {
		v.check(!p.Price.IsNegative(), "price", "must not be negative")
		out.OriginalPrice = Money(*p.Price)
		out.CurrentPrice = Money(*p.Price)
	}

	enabled := strip(p.AuctionEnabled != nil, "auctionEnabled", frozen)
	duration := strip(p.DurationDays != nil, "durationDays", frozen)
	endsAt := strip(p.EndsAt != nil, "endsAt", frozen)
	increment := strip(p.MinimumBidIncrement != nil, "minimumBidIncrement", frozen)

	switch {
	case enabled && !*p.AuctionEnabled:
		out.AuctionEnabled = false
		out.DurationDays = 0
		out.EndsAt = time.Time{}
		out.MinimumBidIncrement = decimal.Zero
		if out.Status == StatusEnded {
			out.Status = StatusActive
		}
	case enabled || duration || endsAt || increment:
		settings := AuctionSettings{}
		if duration {
			settings.DurationDays = *p.DurationDays
		}
		if endsAt {
			settings.EndsAt = p.EndsAt
		}
		if increment {
			settings.MinimumBidIncrement = p.MinimumBidIncrement
		} else if r.AuctionEnabled {
			settings.MinimumBidIncrement = &r.MinimumBidIncrement
		}
		if !duration && !endsAt && r.AuctionEnabled {
			settings.EndsAt = &r.EndsAt
		}
		applyAuctionSettings(v, &out, settings, policy, now)
		if out.Status == StatusEnded && !out.HasWinner() && (duration || endsAt) {
			out.Status = StatusActive
		}
	}

	if err := v.err(); err != nil {
		return r, nil, err
	}
	if out.Stock == 0 && out.Status != StatusCancelled {
		out.Status = StatusSold
	}
	return out, ignored, nil
}

// PurchaseRequest 是直接購買的輸入
type PurchaseRequest struct {
	BuyerName  string
	BuyerEmail string
	Quantity   int
}

// Purchase 直接購買商品並扣除庫存，庫存歸零時狀態變為 sold。
// 保留給得標者的商品只有得標者能購買，購買後保留即完成，ReservedAt 會留下作為已使用的紀錄。
func Purchase(r Record, req PurchaseRequest, now time.Time) (Record, error) {
	v := validator{}
	v.check(strings.TrimSpace(req.BuyerName) != "", "buyerName", "is required")
	validEmail(v, "buyerEmail", req.BuyerEmail)
	v.check(req.Quantity > 0, "quantity", "must be at least 1")
	if err := v.err(); err != nil {
		return r, err
	}

	switch {
	case r.Status == StatusSold || r.Status == StatusCancelled:
		return r, ErrNotPurchasable
	case r.IsOwner(req.BuyerEmail):
		return r, ErrNotPurchasable
	case r.IsReservedWinner():
		if !sameEmail(r.BestBidderEmail, req.BuyerEmail) {
			return r, ErrNotPurchasable
		}
	case r.AuctionEnabled && r.Status == StatusActive && (r.HasWinner() || IsExpired(r, now)):
		return r, ErrNotPurchasable
	}
	if r.Stock < req.Quantity {
		return r, ErrInsufficientStock
	}

	out := r.touch(now)
	out.Stock -= req.Quantity
	if out.IsReservedWinner() {
		out.ReservedForWinner = false
		out.Status = StatusEnded
	}
	if out.Stock == 0 {
		out.Status = StatusSold
	}
	return out, nil
}

// Cancel 取消尚未有人出價的商品
func Cancel(r Record, now time.Time) (Record, error) {
	if r.Status != StatusActive || r.BidCount() > 0 {
		return r, ErrNotCancellable
	}
	out := r.touch(now)
	out.Status = StatusCancelled
	return out, nil
}

// CheckDeletable 拍賣進行中(active)的商品不能刪除
func CheckDeletable(r Record) error {
	if r.AuctionEnabled && r.Status == StatusActive {
		return ErrAuctionActive
	}
	return nil
}

func applyAuctionSettings(v validator, r *Record, s AuctionSettings, policy Policy, now time.Time) {
	r.AuctionEnabled = true
	switch {
	case s.EndsAt != nil:
		v.check(s.EndsAt.After(now), "endsAt", "must be in the future")
		v.check(!s.EndsAt.After(now.AddDate(0, 0, policy.MaxDurationDays)), "endsAt", "must be within the maximum auction duration")
		r.EndsAt = *s.EndsAt
		r.DurationDays = s.DurationDays
		if s.DurationDays != 0 {
			validDuration(v, s.DurationDays, policy)
		}
	case s.DurationDays != 0:
		validDuration(v, s.DurationDays, policy)
		r.DurationDays = s.DurationDays
		r.EndsAt = now.AddDate(0, 0, s.DurationDays)
	default:
		v.check(false, "endsAt", "either durationDays or endsAt is required")
	}

	increment := DefaultMinimumBidIncrement
	if s.MinimumBidIncrement != nil {
		increment = Money(*s.MinimumBidIncrement)
	}
	v.check(increment.IsPositive(), "minimumBidIncrement", "must be greater than 0")
	v.check(!increment.LessThan(policy.MinIncrementFloor) && !increment.GreaterThan(policy.MinIncrementCeiling),
		"minimumBidIncrement", "must be between "+policy.MinIncrementFloor.String()+" and "+policy.MinIncrementCeiling.String())
	r.MinimumBidIncrement = increment
}

func validDuration(v validator, days int, policy Policy) {
	v.check(days >= policy.MinDurationDays && days <= policy.MaxDurationDays, "durationDays", "is out of range")
}

func validName(v validator, name string) {
	name = strings.TrimSpace(name)
	v.check(name != "", "name", "is required")
	v.check(len(name) <= maxNameLength, "name", "is too long")
}

func validEmail(v validator, field, email string) {
	email = strings.TrimSpace(email)
	v.check(email != "", field, "is required")
	if email == "" {
		return
	}
	_, err := mail.ParseAddress(email)
	v.check(err == nil, field, "must be a valid email address")
}

func validImageURL(v validator, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	v.check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "", "imageUrl", "must be an http(s) URL")
}
