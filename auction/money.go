package auction

import "github.com/shopspring/decimal"

// monetaryPrecision 金額統一以小數點後兩位比較，避免浮點誤差
const monetaryPrecision int32 = 2

// DefaultMinimumBidIncrement 是未指定最小加價幅度時的預設值
var DefaultMinimumBidIncrement = decimal.NewFromInt(1)

// Money 將金額四捨五入到 monetaryPrecision
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(monetaryPrecision)
}

// MinimumNextBid 回傳下一次出價可接受的最低金額
func MinimumNextBid(r Record) decimal.Decimal {
	return Money(r.CurrentPrice.Add(r.MinimumBidIncrement))
}
