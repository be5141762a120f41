package auction

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// 商業規則錯誤。規則不符合時整個讀取-修改-寫入都會放棄，不會留下部分狀態。
var (
	ErrNotBiddable       = errors.New("product is not open for bidding")
	ErrAuctionClosed     = errors.New("auction is closed")
	ErrSelfBidForbidden  = errors.New("owner cannot bid on own product")
	ErrBidTooLow         = errors.New("bid is too low")
	ErrNoWinnerToReserve = errors.New("no winner to reserve")
	ErrNotReserved       = errors.New("product is not reserved for a winner")
	ErrReservationUsed   = errors.New("winner reservation has already been used")
	ErrAuctionActive     = errors.New("auction is still active")
	ErrNotPurchasable    = errors.New("product cannot be purchased")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotCancellable    = errors.New("product cannot be cancelled")
	ErrNotSettleable     = errors.New("auction is not awaiting settlement")
	ErrAlreadyNotified   = errors.New("winner already notified")
	ErrValidationFailed  = errors.New("validation failed")
)

// BidTooLowError 回報出價過低以及可接受的最低金額
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid %s is too low, minimum acceptable bid is %s", e.Amount.StringFixed(monetaryPrecision), e.Minimum.StringFixed(monetaryPrecision))
}

func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}

// ValidationError 以欄位為單位記錄驗證失敗的原因
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// validator 收集欄位錯誤
type validator map[string]string

func (v validator) check(ok bool, field, message string) {
	if ok {
		return
	}
	if _, exists := v[field]; !exists {
		v[field] = message
	}
}

func (v validator) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}
