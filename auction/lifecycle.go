package auction

import "time"

// 以下函式只依賴傳入的 now 與 Record，呼叫端每次操作只讀取一次時鐘，
// 並在同一次操作的所有判斷中共用同一個 now。

// IsExpired 判斷拍賣是否已經到達結束時間
func IsExpired(r Record, now time.Time) bool {
	return r.AuctionEnabled && !now.Before(r.EndsAt)
}

// IsBiddingEnded 判斷競標是否已經結束
func IsBiddingEnded(r Record, now time.Time) bool {
	switch r.Status {
	case StatusEnded, StatusSold, StatusReserved:
		return true
	}
	return IsExpired(r, now)
}

// CanBid 判斷目前是否可以出價
func CanBid(r Record, now time.Time) bool {
	return r.AuctionEnabled && r.Stock > 0 && r.Status == StatusActive && !IsExpired(r, now)
}

// NeedsSettlement 判斷拍賣是否已過期但尚未結算
func NeedsSettlement(r Record, now time.Time) bool {
	return r.Status == StatusActive && IsExpired(r, now)
}

// TimeRemaining 回傳距離拍賣結束的時間，已結束則為 0
func TimeRemaining(r Record, now time.Time) time.Duration {
	if !r.AuctionEnabled || IsBiddingEnded(r, now) {
		return 0
	}
	return r.EndsAt.Sub(now)
}

// Resolution 描述 Resolve 的結果
type Resolution struct {
	// Changed 表示狀態有轉換，呼叫端需要寫回儲存層
	Changed bool
	// EligibleForReservation 表示拍賣結束時已有最高出價者，可以保留給得標者
	EligibleForReservation bool
}

// Resolve 將已過期但仍為 active 的拍賣轉為 ended。
// 對已經結算過的 Record 呼叫不會有任何變化。
func Resolve(r Record, now time.Time) (Record, Resolution) {
	if !NeedsSettlement(r, now) {
		return r, Resolution{}
	}
	out := r.touch(now)
	out.Status = StatusEnded
	return out, Resolution{
		Changed:                true,
		EligibleForReservation: out.HasWinner(),
	}
}
