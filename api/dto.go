package api

import (
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bazaar/auction"
	"bazaar/market"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func seconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}

type createProductRequest struct {
	Name                string           `json:"name" binding:"required,max=255"`
	Category            string           `json:"category" binding:"required"`
	ImageURL            string           `json:"imageUrl"`
	Description         string           `json:"description"`
	Stock               *int             `json:"stock" binding:"required,gte=0"`
	Price               *decimal.Decimal `json:"price" binding:"required"`
	AuctionEnabled      bool             `json:"auctionEnabled"`
	DurationDays        int              `json:"durationDays"`
	EndsAt              *time.Time       `json:"endsAt"`
	MinimumBidIncrement *decimal.Decimal `json:"minimumBidIncrement"`
}

func (req createProductRequest) listing() auction.NewListing {
	in := auction.NewListing{
		Name:        req.Name,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Description: req.Description,
		Stock:       lo.FromPtr(req.Stock),
		Price:       lo.FromPtr(req.Price),
	}
	if req.AuctionEnabled {
		in.Auction = &auction.AuctionSettings{
			DurationDays:        req.DurationDays,
			EndsAt:              req.EndsAt,
			MinimumBidIncrement: req.MinimumBidIncrement,
		}
	}
	return in
}

// patchProductRequest 只列出擁有者可以修改的欄位，其他欄位在解碼時會被忽略
type patchProductRequest struct {
	Name                *string          `json:"name" binding:"omitempty,max=255"`
	Category            *string          `json:"category"`
	ImageURL            *string          `json:"imageUrl"`
	Description         *string          `json:"description"`
	Stock               *int             `json:"stock" binding:"omitempty,gte=0"`
	Price               *decimal.Decimal `json:"price"`
	AuctionEnabled      *bool            `json:"auctionEnabled"`
	DurationDays        *int             `json:"durationDays"`
	EndsAt              *time.Time       `json:"endsAt"`
	MinimumBidIncrement *decimal.Decimal `json:"minimumBidIncrement"`
}

func (req patchProductRequest) patch() auction.Patch {
	return auction.Patch{
		Name:                req.Name,
		Category:            req.Category,
		ImageURL:            req.ImageURL,
		Description:         req.Description,
		Stock:               req.Stock,
		Price:               req.Price,
		AuctionEnabled:      req.AuctionEnabled,
		DurationDays:        req.DurationDays,
		EndsAt:              req.EndsAt,
		MinimumBidIncrement: req.MinimumBidIncrement,
	}
}

type purchaseRequest struct {
	BuyerName  string `json:"buyerName" binding:"required"`
	BuyerEmail string `json:"buyerEmail" binding:"required,email"`
	Quantity   int    `json:"quantity" binding:"omitempty,gte=1"`
}

type bidRequest struct {
	BidderName  string           `json:"bidderName" binding:"required,max=255"`
	BidderEmail string           `json:"bidderEmail" binding:"required,email"`
	BidAmount   *decimal.Decimal `json:"bidAmount" binding:"required"`
}

// productResponse 是商品的公開資訊，不包含出價者的 email
type productResponse struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"ownerId"`
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	ImageURL            string     `json:"imageUrl,omitempty"`
	Description         string     `json:"description"`
	Stock               int        `json:"stock"`
	OriginalPrice       string     `json:"originalPrice"`
	CurrentPrice        string     `json:"currentPrice"`
	AuctionEnabled      bool       `json:"auctionEnabled"`
	DurationDays        int        `json:"durationDays,omitempty"`
	EndsAt              *time.Time `json:"endsAt,omitempty"`
	MinimumBidIncrement string     `json:"minimumBidIncrement,omitempty"`
	MinimumNextBid      string     `json:"minimumNextBid,omitempty"`
	Status              string     `json:"status"`
	BestBidder          string     `json:"bestBidder,omitempty"`
	BidCount            int        `json:"bidCount"`
	WinnerNotified      bool       `json:"winnerNotified"`
	ReservedForWinner   bool       `json:"reservedForWinner"`
	ReservedAt          *time.Time `json:"reservedAt,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func newProductResponse(r auction.Record) productResponse {
	resp := productResponse{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Name:              r.Name,
		Category:          string(r.Category),
		ImageURL:          r.ImageURL,
		Description:       r.Description,
		Stock:             r.Stock,
		OriginalPrice:     money(r.OriginalPrice),
		CurrentPrice:      money(r.CurrentPrice),
		AuctionEnabled:    r.AuctionEnabled,
		Status:            string(r.Status),
		BestBidder:        r.BestBidder,
		BidCount:          r.BidCount(),
		WinnerNotified:    r.WinnerNotified,
		ReservedForWinner: r.ReservedForWinner,
		ReservedAt:        r.ReservedAt,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.AuctionEnabled {
		resp.DurationDays = r.DurationDays
		resp.EndsAt = lo.ToPtr(r.EndsAt)
		resp.MinimumBidIncrement = money(r.MinimumBidIncrement)
		if r.Status == auction.StatusActive {
			resp.MinimumNextBid = money(auction.MinimumNextBid(r))
		}
	}
	return resp
}

func newProductResponses(records []auction.Record) []productResponse {
	return lo.Map(records, func(r auction.Record, _ int) productResponse {
		return newProductResponse(r)
	})
}

type updateProductResponse struct {
	Product       productResponse `json:"product"`
	IgnoredFields []string        `json:"ignoredFields"`
}

type bidResponse struct {
	ProductID            string    `json:"productId"`
	CurrentPrice         string    `json:"currentPrice"`
	BestBidder           string    `json:"bestBidder"`
	BidCount             int       `json:"bidCount"`
	TimeRemainingSeconds int64     `json:"timeRemainingSeconds"`
	EndsAt               time.Time `json:"endsAt"`
}

func newBidResponse(result market.BidResult) bidResponse {
	return bidResponse{
		ProductID:            result.ProductID,
		CurrentPrice:         money(result.CurrentPrice),
		BestBidder:           result.BestBidder,
		BidCount:             result.BidCount,
		TimeRemainingSeconds: seconds(result.TimeRemaining),
		EndsAt:               result.EndsAt,
	}
}

type bidEntry struct {
	BidderName string    `json:"bidderName"`
	Amount     string    `json:"amount"`
	PlacedAt   time.Time `json:"placedAt"`
}

type bidHistoryResponse struct {
	ProductID            string     `json:"productId"`
	ProductName          string     `json:"productName"`
	AuctionEnabled       bool       `json:"auctionEnabled"`
	Status               string     `json:"status"`
	CurrentPrice         string     `json:"currentPrice"`
	BestBidder           string     `json:"bestBidder,omitempty"`
	BidCount             int        `json:"bidCount"`
	TimeRemainingSeconds int64      `json:"timeRemainingSeconds"`
	EndsAt               time.Time  `json:"endsAt"`
	Bids                 []bidEntry `json:"bids"`
}

func newBidHistoryResponse(h market.BidHistory) bidHistoryResponse {
	return bidHistoryResponse{
		ProductID:            h.ProductID,
		ProductName:          h.ProductName,
		AuctionEnabled:       h.AuctionEnabled,
		Status:               string(h.Status),
		CurrentPrice:         money(h.CurrentPrice),
		BestBidder:           h.BestBidder,
		BidCount:             h.BidCount,
		TimeRemainingSeconds: seconds(h.TimeRemaining),
		EndsAt:               h.EndsAt,
		Bids: lo.Map(h.Bids, func(b auction.Bid, _ int) bidEntry {
			return bidEntry{BidderName: b.BidderName, Amount: money(b.Amount), PlacedAt: b.PlacedAt}
		}),
	}
}

type activePageResponse struct {
	Items []productResponse `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

type imageResponse struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	SizeText    string `json:"sizeText"`
}
