package sse

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bazaar/market"
)

var ErrHubClosed = errors.New("hub is closed")

type hubOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type HubOption func(*hubOptions)

// WithHubLogger 設置日誌記錄器
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		o.logger = logger
	}
}

// WithHubBufferSize 設置每個連線的緩衝大小
func WithHubBufferSize(size int) HubOption {
	return func(o *hubOptions) {
		o.bufferSize = size
	}
}

// Hub 以商品 ID 為頻道管理 SSE 連線。
// 單機部署時直接作為 market.IPublisher；多實例部署時由 Run 轉送 Redis stream 上的事件。
type Hub struct {
	logger     *slog.Logger
	bufferSize int

	mu       sync.RWMutex
	closed   bool
	channels map[string]*Channel[market.Event]
}

func NewHub(opts ...HubOption) *Hub {
	// 默認選項
	options := hubOptions{
		logger:     slog.Default(),
		bufferSize: 16,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Hub{
		logger:     options.logger.With(slog.String("caller", "Hub")),
		bufferSize: options.bufferSize,
		channels:   make(map[string]*Channel[market.Event]),
	}
}

func (h *Hub) Subscribe(productID string) (<-chan market.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	c, ok := h.channels[productID]
	if !ok {
		c = NewChannel[market.Event](h.bufferSize)
		h.channels[productID] = c
	}
	return c.Subscribe(), nil
}

func (h *Hub) Unsubscribe(productID string, ch <-chan market.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.channels[productID]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(h.channels, productID)
	}
}

func (h *Hub) Publish(event market.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	if c, ok := h.channels[event.ProductID]; ok {
		c.Broadcast(event)
	}
	return nil
}

func (h *Hub) Run(ctx context.Context, source <-chan market.Event) {
	h.logger.Info("Start relaying events")
	defer h.logger.Info("Stop relaying events")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-source:
			if !ok {
				return
			}
			if err := h.Publish(event); err != nil {
				return
			}
		}
	}
}

// Subscribers 回傳指定商品目前的連線數
func (h *Hub) Subscribers(productID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.channels[productID]; ok {
		return c.Len()
	}
	return 0
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.channels {
		c.UnsubscribeAll()
	}
	clear(h.channels)
}
