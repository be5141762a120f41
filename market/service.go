package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"bazaar/auction"
)

// errNoChange 由轉換函式回傳，表示紀錄已經是目標狀態，不需要寫入
var errNoChange = errors.New("no change")

type serviceOptions struct {
	logger    *slog.Logger
	clock     func() time.Time
	publisher IPublisher
	notifier  INotifier
	policy    auction.Policy
	dbTimeout time.Duration
	sanitizer *bluemonday.Policy
	idFunc    func() string
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithServiceClock 設置取得目前時間的函式
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

// WithServicePublisher 設置拍賣事件的發布者
func WithServicePublisher(publisher IPublisher) ServiceOption {
	return func(o *serviceOptions) {
		o.publisher = publisher
	}
}

// WithServiceNotifier 設置得標通知的發送者
func WithServiceNotifier(notifier INotifier) ServiceOption {
	return func(o *serviceOptions) {
		o.notifier = notifier
	}
}

// WithServicePolicy 設置拍賣參數範圍
func WithServicePolicy(policy auction.Policy) ServiceOption {
	return func(o *serviceOptions) {
		o.policy = policy
	}
}

// WithServiceDBTimeout 設置每次存取資料庫的逾時時間
func WithServiceDBTimeout(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.dbTimeout = d
	}
}

// WithServiceIDFunc 設置新商品 ID 的產生方式
func WithServiceIDFunc(fn func() string) ServiceOption {
	return func(o *serviceOptions) {
		o.idFunc = fn
	}
}

// Service 是市集的應用層，負責讀取紀錄、呼叫 auction 的純函式並提交結果
type Service struct {
	store   Store
	logger  *slog.Logger
	options serviceOptions
}

func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	// 默認選項
	options := serviceOptions{
		logger:    slog.Default(),
		clock:     time.Now,
		publisher: noopPublisher{},
		policy:    auction.DefaultPolicy(),
		dbTimeout: 5 * time.Second,
		sanitizer: bluemonday.UGCPolicy(),
		idFunc:    uuid.NewString,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.notifier == nil {
		options.notifier = NewLogNotifier(options.logger)
	}
	if options.dbTimeout <= 0 {
		return nil, errors.New("db timeout must be positive")
	}

	return &Service{
		store:   store,
		logger:  options.logger.With(slog.String("caller", "MarketService")),
		options: options,
	}, nil
}

// Policy 回傳目前使用的拍賣參數範圍
func (s *Service) Policy() auction.Policy {
	return s.options.policy
}

func (s *Service) now() time.Time {
	return s.options.clock().UTC()
}

func (s *Service) get(ctx context.Context, id string) (auction.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
	defer cancel()
	return s.store.Get(ctx, id)
}

// mutate 讀取最新的紀錄、套用 transition 後以 version 做 compare-and-swap。
// 遇到 ErrConflict 時重新讀取並對新的紀錄再套用一次，第二次衝突則直接回傳 ErrConflict。
// transition 必須是純函式，兩次呼叫都使用呼叫端同一個 now。
func (s *Service) mutate(ctx context.Context, id string, transition func(auction.Record) (auction.Record, error)) (auction.Record, auction.Record, error) {
	const op = "mutate"
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.get(ctx, id)
		if err != nil {
			return auction.Record{}, auction.Record{}, err
		}
		next, err := transition(current)
		if err != nil {
			return current, current, err
		}
		saved, err := func() (auction.Record, error) {
			ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
			defer cancel()
			return s.store.Update(ctx, current, next)
		}()
		if errors.Is(err, ErrConflict) {
			s.logger.Debug("Version conflict, retry with fresh record", slog.String("productId", id), slog.Int("attempt", attempt+1))
			lastErr = err
			continue
		}
		if err != nil {
			return current, current, fmt.Errorf("[%s] Fail to update product, id=%s, err=%w", op, id, err)
		}
		return current, saved, nil
	}
	return auction.Record{}, auction.Record{}, lastErr
}

func (s *Service) publish(event Event) {
	if err := s.options.publisher.Publish(event); err != nil {
		s.logger.Warn("Fail to publish event",
			slog.String("type", string(event.Type)),
			slog.String("productId", event.ProductID),
			slog.Any("error", err))
	}
}

// Actor 是發出請求的使用者
type Actor struct {
	ID    string
	Email string
	Name  string
	Admin bool
}

func (a Actor) owns(r auction.Record) bool {
	if a.Admin {
		return true
	}
	if a.ID != "" && a.ID == r.OwnerID {
		return true
	}
	return a.Email != "" && strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(r.OwnerEmail))
}
