package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"

	"bazaar/market"
)

var (
	ErrProducerClosed = errors.New("producer is closed")
)

type producerOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	maxLen       int64
	flushTimeout time.Duration
	parseFunc    func(T) (map[string]any, error)
}

type ProducerOption[T any] func(*producerOptions[T])

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝大小
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 設置 stream 的大約長度上限，0 表示不修剪
func WithProducerMaxLen[T any](n int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = n
	}
}

// WithProducerFlushTimeout 設置 Close 時等待緩衝中的消息寫完的時間上限
func WithProducerFlushTimeout[T any](d time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.flushTimeout = d
	}
}

// WithProducerParseFunc 設置消息序列化函數
func WithProducerParseFunc[T any](fn func(T) (map[string]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.parseFunc = fn
	}
}

// Producer 先把消息放進無上限的緩衝，再由背景 goroutine 逐筆 XADD，
// 呼叫端不會因為 Redis 變慢而被阻塞。Close 會先把緩衝中的消息寫完，超過 flushTimeout 才放棄。
type Producer[T any] struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    producerOptions[T]
}

func NewProducer[T any](client *redis.Client, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := producerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		flushTimeout: 3 * time.Second,
		parseFunc:    DefaultParseToMessage[T],
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Producer[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

// NewEventPublisher 建立將拍賣事件寫入 stream 的 Producer，可直接作為 market.IPublisher 使用
func NewEventPublisher(client *redis.Client, stream string, opts ...ProducerOption[market.Event]) (*Producer[market.Event], error) {
	opts = append([]ProducerOption[market.Event]{WithProducerParseFunc(EncodeEvent)}, opts...)
	return NewProducer(client, stream, opts...)
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting stream producer")

	p.wg.Add(1)
	go func(out <-chan map[string]any) {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")

		// In 被關閉後 chanx 會先送完緩衝再關閉 Out
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-out:
				if !ok {
					return
				}
				p.add(ctx, message)
			}
		}
	}(p.upstream.Out)
}

func (p *Producer[T]) add(ctx context.Context, message map[string]any) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: message,
	}
	if p.options.maxLen > 0 {
		args.MaxLen = p.options.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("publish message error", slog.Any("error", err))
		return
	}
	p.logger.Debug("message published", slog.String("messageId", id))
}

func (p *Producer[T]) Publish(data T) error {
	message, err := p.options.parseFunc(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	p.upstream.In <- message
	return nil
}

func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing stream producer", slog.Int("pending", p.upstream.Len()))
	p.closed = true
	close(p.upstream.In)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.options.flushTimeout):
		p.logger.Warn("flush timeout, drop pending messages", slog.Int("pending", p.upstream.Len()))
	}
	p.cancelFunc()
	<-done
	p.logger.Info("stream producer closed")
}
