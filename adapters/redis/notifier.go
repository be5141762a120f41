package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"bazaar/market"
)

type streamNotifierOptions struct {
	logger *slog.Logger
	maxLen int64
}

type StreamNotifierOption func(*streamNotifierOptions)

// WithStreamNotifierLogger 設置日誌記錄器
func WithStreamNotifierLogger(logger *slog.Logger) StreamNotifierOption {
	return func(o *streamNotifierOptions) {
		o.logger = logger
	}
}

// WithStreamNotifierMaxLen 設置 stream 的大約長度上限，0 表示不修剪
func WithStreamNotifierMaxLen(n int64) StreamNotifierOption {
	return func(o *streamNotifierOptions) {
		o.maxLen = n
	}
}

// StreamNotifier 將得標通知同步寫入 stream，交由郵件服務消費。
// 寫入成功才算通知完成，失敗時由下一輪通知排程重試。
type StreamNotifier struct {
	client *redis.Client
	stream string
	logger *slog.Logger
	maxLen int64
}

func NewStreamNotifier(client *redis.Client, stream string, opts ...StreamNotifierOption) (*StreamNotifier, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := streamNotifierOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &StreamNotifier{
		client: client,
		stream: stream,
		logger: options.logger.With(slog.String("caller", "StreamNotifier"), slog.String("stream", stream)),
		maxLen: options.maxLen,
	}, nil
}

func (n *StreamNotifier) NotifyWinner(ctx context.Context, notice market.WinnerNotice) error {
	const op = "NotifyWinner"
	values, err := EncodeNotice(notice)
	if err != nil {
		return fmt.Errorf("[%s] Fail to encode notice, productId=%s, err=%w", op, notice.ProductID, err)
	}
	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: values,
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}
	id, err := n.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("[%s] Fail to add notice to stream, productId=%s, err=%w", op, notice.ProductID, err)
	}
	n.logger.Info("Winner notice queued",
		slog.String("productId", notice.ProductID),
		slog.String("messageId", id))
	return nil
}

var _ market.INotifier = (*StreamNotifier)(nil)
var _ market.IPublisher = (*Producer[market.Event])(nil)
var _ IConsumer[market.Event] = (*Consumer[market.Event])(nil)
var _ ISweepLock = (*SweepLock)(nil)
