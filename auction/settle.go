package auction

import "time"

// Outcome 是結算單一拍賣的結果
type Outcome string

const (
	OutcomeReserved    Outcome = "reserved"
	OutcomeEndedNoBids Outcome = "ended_no_bids"
)

// NoBidsEndedMessage 是沒有出價而結束的拍賣在結算報告中的說明
const NoBidsEndedMessage = "no bids, marked ended"

// ReserveForWinner 將已結束競標的商品保留給最高出價者。
// 沒有最高出價者或競標尚未結束時回傳 ErrNoWinnerToReserve；
// 已經保留過的商品直接原樣回傳。
// 保留只能使用一次: 得標者購買後 ReservedAt 仍會保留，之後回傳 ErrReservationUsed。
func ReserveForWinner(r Record, now time.Time) (Record, error) {
	if r.IsReservedWinner() {
		return r, nil
	}
	if r.ReservedAt != nil || r.WinnerNotified {
		return r, ErrReservationUsed
	}
	if !r.HasWinner() || !IsBiddingEnded(r, now) {
		return r, ErrNoWinnerToReserve
	}
	if r.Status == StatusSold || r.Status == StatusCancelled {
		return r, ErrNoWinnerToReserve
	}
	out := r.touch(now)
	out.Status = StatusReserved
	out.ReservedForWinner = true
	reservedAt := now
	out.ReservedAt = &reservedAt
	return out, nil
}

// Settle 結算一個已過期但仍為 active 的拍賣:
// 有最高出價者時保留給得標者，否則標記為 ended。
func Settle(r Record, now time.Time) (Record, Outcome, error) {
	if !NeedsSettlement(r, now) {
		return r, "", ErrNotSettleable
	}
	resolved, resolution := Resolve(r, now)
	if !resolution.EligibleForReservation {
		return resolved, OutcomeEndedNoBids, nil
	}
	reserved, err := ReserveForWinner(resolved, now)
	if err != nil {
		return r, "", err
	}
	return reserved, OutcomeReserved, nil
}

// MarkWinnerNotified 記錄已通知得標者
func MarkWinnerNotified(r Record, now time.Time) (Record, error) {
	if !r.IsReservedWinner() {
		return r, ErrNotReserved
	}
	if r.WinnerNotified {
		return r, ErrAlreadyNotified
	}
	out := r.touch(now)
	out.WinnerNotified = true
	return out, nil
}
