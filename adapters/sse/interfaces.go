package sse

import (
	"context"

	"bazaar/market"
)

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IHub 定義了依商品分流拍賣事件的介面
type IHub interface {
	// Subscribe 訂閱指定商品的事件
	Subscribe(productID string) (<-chan market.Event, error)
	// Unsubscribe 取消訂閱並關閉通道
	Unsubscribe(productID string, ch <-chan market.Event)
	// Publish 將事件送給訂閱該商品的連線
	Publish(event market.Event) error
	// Run 持續轉送來源的事件，直到來源關閉或 ctx 結束
	Run(ctx context.Context, source <-chan market.Event)
	// Close 關閉所有訂閱
	Close()
}

var (
	_ IChannel[market.Event] = (*Channel[market.Event])(nil)
	_ IHub                   = (*Hub)(nil)
	_ market.IPublisher      = (*Hub)(nil)
)
