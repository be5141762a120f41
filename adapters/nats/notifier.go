package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"bazaar/market"
)

// IPublisher 是 Notifier 需要的 JetStream 發布能力
type IPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type notifierOptions struct {
	logger  *slog.Logger
	subject string
}

type NotifierOption func(*notifierOptions)

// WithNotifierLogger 設置日誌記錄器
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(o *notifierOptions) {
		o.logger = logger
	}
}

// WithNotifierSubject 設置發布得標通知的 subject
func WithNotifierSubject(subject string) NotifierOption {
	return func(o *notifierOptions) {
		o.subject = subject
	}
}

// Notifier 將得標通知以 JSON 發布到 JetStream，收到 PubAck 才算成功。
// 每則通知帶有 Nats-Msg-Id，重試時 JetStream 會在去重視窗內忽略重複的訊息。
type Notifier struct {
	js      IPublisher
	subject string
	logger  *slog.Logger
}

func NewNotifier(js IPublisher, opts ...NotifierOption) (*Notifier, error) {
	if js == nil {
		return nil, errors.New("jetstream cannot be nil")
	}

	// 默認選項
	options := notifierOptions{
		logger:  slog.Default(),
		subject: "auction.winners",
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Notifier{
		js:      js,
		subject: options.subject,
		logger:  options.logger.With(slog.String("caller", "NatsNotifier"), slog.String("subject", options.subject)),
	}, nil
}

// Connect 連線到 NATS 並確保保存得標通知的 stream 存在
func Connect(ctx context.Context, url, stream, subject string) (*nats.Conn, jetstream.JetStream, error) {
	const op = "Connect"
	conn, err := nats.Connect(url, nats.Name("bazaar"))
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] Fail to connect to nats, err=%w", op, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("[%s] Fail to create jetstream context, err=%w", op, err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Auction winner notifications",
		Subjects:    []string{subject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("[%s] Fail to create or update stream, stream=%s, err=%w", op, stream, err)
	}
	return conn, js, nil
}

// MessageID 回傳通知的去重鍵，同一次保留只會對應到一個 ID
func MessageID(notice market.WinnerNotice) string {
	return fmt.Sprintf("winner-%s-%d", notice.ProductID, notice.ReservedAt.UnixMilli())
}

func (n *Notifier) NotifyWinner(ctx context.Context, notice market.WinnerNotice) error {
	const op = "NotifyWinner"
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal notice, productId=%s, err=%w", op, notice.ProductID, err)
	}
	ack, err := n.js.Publish(ctx, n.subject, payload, jetstream.WithMsgID(MessageID(notice)))
	if err != nil {
		return fmt.Errorf("[%s] Fail to publish notice, productId=%s, err=%w", op, notice.ProductID, err)
	}
	n.logger.Info("Winner notice published",
		slog.String("productId", notice.ProductID),
		slog.Uint64("sequence", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate))
	return nil
}

var _ market.INotifier = (*Notifier)(nil)
