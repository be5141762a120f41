package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"bazaar/auction"
	"bazaar/market"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// DefaultParseToMessage 以 msgpack + base64 將資料封裝成 stream 的欄位 {"data": ...}
func DefaultParseToMessage[T any](data T) (map[string]any, error) {
	// 檢查是否為指標類型
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"data": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DefaultParseFromMessage 是 DefaultParseToMessage 的反向操作
func DefaultParseFromMessage[T any](message map[string]any) (T, error) {
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(message) == 0 {
		return result, nil
	}

	dataStr, ok := message["data"].(string)
	if !ok {
		return result, fmt.Errorf("data field not found or invalid type")
	}

	bytes, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}

// eventPayload 是拍賣事件在 stream 上的格式，金額以字串保存避免精度問題
type eventPayload struct {
	Type         string    `msgpack:"type"`
	ProductID    string    `msgpack:"productId"`
	Status       string    `msgpack:"status"`
	CurrentPrice string    `msgpack:"currentPrice"`
	BestBidder   string    `msgpack:"bestBidder"`
	BidCount     int       `msgpack:"bidCount"`
	EndsAt       time.Time `msgpack:"endsAt"`
	At           time.Time `msgpack:"at"`
}

// EncodeEvent 將 market.Event 轉成 stream 欄位
func EncodeEvent(e market.Event) (map[string]any, error) {
	return DefaultParseToMessage(eventPayload{
		Type:         string(e.Type),
		ProductID:    e.ProductID,
		Status:       string(e.Status),
		CurrentPrice: e.CurrentPrice.StringFixed(2),
		BestBidder:   e.BestBidder,
		BidCount:     e.BidCount,
		EndsAt:       e.EndsAt.UTC(),
		At:           e.At.UTC(),
	})
}

// DecodeEvent 將 stream 欄位還原為 market.Event
func DecodeEvent(message map[string]any) (market.Event, error) {
	p, err := DefaultParseFromMessage[eventPayload](message)
	if err != nil {
		return market.Event{}, err
	}
	if p.ProductID == "" {
		return market.Event{}, errors.New("event without product id")
	}
	price, err := decimal.NewFromString(p.CurrentPrice)
	if err != nil {
		return market.Event{}, fmt.Errorf("invalid current price %q: %w", p.CurrentPrice, err)
	}
	return market.Event{
		Type:         market.EventType(p.Type),
		ProductID:    p.ProductID,
		Status:       auction.Status(p.Status),
		CurrentPrice: price,
		BestBidder:   p.BestBidder,
		BidCount:     p.BidCount,
		EndsAt:       p.EndsAt.UTC(),
		At:           p.At.UTC(),
	}, nil
}

// noticePayload 是交給郵件服務的得標通知格式
type noticePayload struct {
	ProductID   string    `msgpack:"productId"`
	ProductName string    `msgpack:"productName"`
	OwnerEmail  string    `msgpack:"ownerEmail"`
	WinnerName  string    `msgpack:"winnerName"`
	WinnerEmail string    `msgpack:"winnerEmail"`
	WinningBid  string    `msgpack:"winningBid"`
	ReservedAt  time.Time `msgpack:"reservedAt"`
}

// EncodeNotice 將得標通知轉成 stream 欄位
func EncodeNotice(n market.WinnerNotice) (map[string]any, error) {
	return DefaultParseToMessage(noticePayload{
		ProductID:   n.ProductID,
		ProductName: n.ProductName,
		OwnerEmail:  n.OwnerEmail,
		WinnerName:  n.WinnerName,
		WinnerEmail: n.WinnerEmail,
		WinningBid:  n.WinningBid.StringFixed(2),
		ReservedAt:  n.ReservedAt.UTC(),
	})
}

// DecodeNotice 供通知服務端解析得標通知
func DecodeNotice(message map[string]any) (market.WinnerNotice, error) {
	p, err := DefaultParseFromMessage[noticePayload](message)
	if err != nil {
		return market.WinnerNotice{}, err
	}
	amount, err := decimal.NewFromString(p.WinningBid)
	if err != nil {
		return market.WinnerNotice{}, fmt.Errorf("invalid winning bid %q: %w", p.WinningBid, err)
	}
	return market.WinnerNotice{
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		OwnerEmail:  p.OwnerEmail,
		WinnerName:  p.WinnerName,
		WinnerEmail: p.WinnerEmail,
		WinningBid:  amount,
		ReservedAt:  p.ReservedAt.UTC(),
	}, nil
}
