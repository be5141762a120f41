package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bazaar/market"
)

type consumerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	batchSize    int64
	retryDelay   time.Duration
	startID      string
	parseFunc    func(map[string]any) (T, error)
}

type ConsumerOption[T any] func(*consumerOptions[T])

// WithConsumerLogger 設置日誌記錄器
func WithConsumerLogger[T any](logger *slog.Logger) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.logger = logger
	}
}

// WithConsumerBufferSize 設置下游channel的緩衝大小
func WithConsumerBufferSize[T any](size int) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithConsumerBlockTimeout 設置阻塞讀取超時時間
func WithConsumerBlockTimeout[T any](d time.Duration) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithConsumerBatchSize 設置每次 XREAD 最多讀取的消息數量
func WithConsumerBatchSize[T any](n int64) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.batchSize = n
	}
}

// WithConsumerRetryDelay 設置讀取失敗後的等待時間
func WithConsumerRetryDelay[T any](d time.Duration) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.retryDelay = d
	}
}

// WithConsumerStartID 設置開始讀取的位置，預設 "$" 只讀新消息
func WithConsumerStartID[T any](id string) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.startID = id
	}
}

// WithConsumerParseFunc 設置自定義解析函數
func WithConsumerParseFunc[T any](fn func(map[string]any) (T, error)) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.parseFunc = fn
	}
}

// Consumer 以 XREAD 追蹤 stream 的尾端，每個實例都會收到全部消息
type Consumer[T any] struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	logger     *slog.Logger
	options    consumerOptions[T]
}

func NewConsumer[T any](client *redis.Client, stream string, opts ...ConsumerOption[T]) (*Consumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := consumerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		batchSize:    16,
		retryDelay:   time.Second,
		startID:      "$",
		parseFunc:    DefaultParseFromMessage[T],
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}

	return &Consumer[T]{
		client:  client,
		stream:  stream,
		lastID:  options.startID,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Consumer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

// NewEventSubscriber 建立讀取拍賣事件的 Consumer
func NewEventSubscriber(client *redis.Client, stream string, opts ...ConsumerOption[market.Event]) (*Consumer[market.Event], error) {
	opts = append([]ConsumerOption[market.Event]{WithConsumerParseFunc(DecodeEvent)}, opts...)
	return NewConsumer(client, stream, opts...)
}

func (s *Consumer[T]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan T, s.options.bufferSize)
	s.closed = false
	s.cancelFunc = cancel
	s.logger.Info("starting stream consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("consumer goroutine stopped")
		defer close(s.downStream)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			messages, err := s.fetchMessages(ctx)
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				s.logger.Error("fetch message error", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(s.options.retryDelay):
				}
				continue
			}
			if !s.forward(ctx, messages) {
				return
			}
		}
	}()
}

// forward 依序解析並送往下游，ctx 結束時回傳 false
func (s *Consumer[T]) forward(ctx context.Context, messages []redis.XMessage) bool {
	for _, message := range messages {
		data, err := s.options.parseFunc(message.Values)
		if err != nil {
			s.logger.Error("failed to parse message",
				slog.String("messageId", message.ID),
				slog.Any("error", err))
			continue
		}

		select {
		case <-ctx.Done():
			return false
		case s.downStream <- data:
			s.logger.Debug("message sent to downstream",
				slog.String("messageId", message.ID))
		}
	}
	return true
}

// fetchMessages 從 lastID 之後讀取一批消息，沒有新消息時回傳 redis.Nil
func (s *Consumer[T]) fetchMessages(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   s.options.batchSize,
		Block:   s.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}

	messages := streams[0].Messages
	s.lastID = messages[len(messages)-1].ID
	return messages, nil
}

// Subscribe 訂閱數據流，Close 之後 channel 會被關閉
func (s *Consumer[T]) Subscribe() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downStream
}

// Close 關閉消費者
func (s *Consumer[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.logger.Info("closing stream consumer")
	s.closed = true
	s.cancelFunc()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("stream consumer closed")
}
