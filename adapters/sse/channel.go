package sse

import (
	"sync"
	"sync/atomic"
)

// Channel 用於管理針對某個主題 (Topic) 的所有訂閱者，
// 並將接收到的訊息廣播給所有訂閱者。
// 每個訂閱者都有自己的緩衝，緩衝滿時該訂閱者會漏掉這則訊息，不會拖慢其他訂閱者。
type Channel[T any] struct {
	subscribers map[<-chan T]chan T
	bufferSize  int
	dropped     atomic.Int64
	mu          sync.RWMutex
}

// NewChannel 建立一個新的頻道，bufferSize 為每個訂閱者的緩衝大小
func NewChannel[T any](bufferSize int) *Channel[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Channel[T]{
		subscribers: make(map[<-chan T]chan T),
		bufferSize:  bufferSize,
	}
}

// Subscribe 建立一個新的 chan T，將其加入 subscribers，並回傳唯讀通道給呼叫者。
func (c *Channel[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan T, c.bufferSize)
	c.subscribers[ch] = ch
	return ch
}

// Unsubscribe 從 subscribers 中移除指定的通道，並關閉該通道。
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if writeCh, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		close(writeCh)
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單。
func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, writeCh := range c.subscribers {
		close(writeCh)
	}
	clear(c.subscribers)
}

// Broadcast 將訊息廣播給所有仍在訂閱清單中的通道，回傳實際送達的數量。
func (c *Channel[T]) Broadcast(message T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	delivered := 0
	for _, writeCh := range c.subscribers {
		select {
		case writeCh <- message:
			delivered++
		default:
			c.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped 回傳因訂閱者緩衝已滿而丟棄的訊息數
func (c *Channel[T]) Dropped() int64 {
	return c.dropped.Load()
}

// Len 回傳目前的訂閱者數量
func (c *Channel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// IsIdle 判斷 subscribers 是否為空。
func (c *Channel[T]) IsIdle() bool {
	return c.Len() == 0
}
