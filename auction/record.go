package auction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status 代表商品(拍賣)目前的狀態
type Status string

const (
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// Statuses 依照生命週期順序列出所有狀態
var Statuses = []Status{StatusActive, StatusEnded, StatusReserved, StatusSold, StatusCancelled}

func (s Status) Valid() bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Bid 代表出價紀錄中的一筆出價，只能附加不能修改
type Bid struct {
	BidderName  string
	BidderEmail string
	Amount      decimal.Decimal
	PlacedAt    time.Time
}

// Record 代表一個商品，同時承載一般上架資訊以及(啟用時的)拍賣狀態。
// Record 是值型別，本套件的所有函式都會回傳新的 Record 而不修改傳入的值。
type Record struct {
	ID         string
	OwnerID    string
	OwnerEmail string

	Name          string
	Category      Category
	ImageURL      string
	Description   string
	Stock         int
	OriginalPrice decimal.Decimal
	CurrentPrice  decimal.Decimal

	AuctionEnabled      bool
	DurationDays        int
	EndsAt              time.Time
	MinimumBidIncrement decimal.Decimal

	Status            Status
	BestBidder        string
	BestBidderEmail   string
	Bids              []Bid
	WinnerNotified    bool
	ReservedForWinner bool
	ReservedAt        *time.Time

	// Version 是樂觀鎖的版本號，每次成功寫入都會加一
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BidCount 回傳出價次數
func (r Record) BidCount() int {
	return len(r.Bids)
}

// HasWinner 判斷是否已經有最高出價者
func (r Record) HasWinner() bool {
	return r.BestBidder != ""
}

// LastBid 回傳最新一筆出價
func (r Record) LastBid() (Bid, bool) {
	if len(r.Bids) == 0 {
		return Bid{}, false
	}
	return r.Bids[len(r.Bids)-1], true
}

// IsOwner 判斷 email 是否為商品擁有者
func (r Record) IsOwner(email string) bool {
	return sameEmail(r.OwnerEmail, email)
}

// IsReservedWinner 判斷商品是否已經保留給得標者。
// 舊資料可能以 ended + reservedForWinner 表示保留，這裡一併視為保留。
func (r Record) IsReservedWinner() bool {
	return r.ReservedForWinner && r.HasWinner() && (r.Status == StatusReserved || r.Status == StatusEnded)
}

// BidsNewestFirst 回傳由新到舊排序的出價紀錄副本
func (r Record) BidsNewestFirst() []Bid {
	out := make([]Bid, len(r.Bids))
	for i, bid := range r.Bids {
		out[len(r.Bids)-1-i] = bid
	}
	return out
}

// clone 複製 Record，讓切片與指標欄位不會和原本的值共用
func (r Record) clone() Record {
	out := r
	if r.Bids != nil {
		out.Bids = make([]Bid, len(r.Bids))
		copy(out.Bids, r.Bids)
	}
	if r.ReservedAt != nil {
		reservedAt := *r.ReservedAt
		out.ReservedAt = &reservedAt
	}
	return out
}

// touch 複製 Record 並更新修改時間；版本號由儲存層在寫入成功時遞增
func (r Record) touch(now time.Time) Record {
	out := r.clone()
	out.UpdatedAt = now
	return out
}

func sameEmail(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
