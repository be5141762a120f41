// Package scheduler 負責定期執行背景工作，例如拍賣結算與得標通知。
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job 是一次排程執行的工作，ctx 會在逾時或失去鎖時被取消
type Job func(ctx context.Context) error

// ILocker 提供跨實例的互斥，取得失敗時本次排程直接略過
type ILocker interface {
	TryLock(ctx context.Context) (context.Context, func(), error)
}

type periodicOptions struct {
	logger     *slog.Logger
	timeout    time.Duration
	locker     ILocker
	runOnStart bool
}

type PeriodicOption func(*periodicOptions)

// WithPeriodicLogger 設置日誌記錄器
func WithPeriodicLogger(logger *slog.Logger) PeriodicOption {
	return func(o *periodicOptions) {
		o.logger = logger
	}
}

// WithPeriodicTimeout 設置單次執行的時間上限，0 表示不限制
func WithPeriodicTimeout(d time.Duration) PeriodicOption {
	return func(o *periodicOptions) {
		o.timeout = d
	}
}

// WithPeriodicLocker 設置跨實例的鎖
func WithPeriodicLocker(locker ILocker) PeriodicOption {
	return func(o *periodicOptions) {
		o.locker = locker
	}
}

// WithPeriodicRunOnStart 設置是否在啟動時立即執行一次
func WithPeriodicRunOnStart(run bool) PeriodicOption {
	return func(o *periodicOptions) {
		o.runOnStart = run
	}
}

// Periodic 每隔固定時間執行一次工作。
// 上一次執行尚未結束時，本次觸發會被略過而不是排隊。
type Periodic struct {
	name     string
	interval time.Duration
	job      Job
	logger   *slog.Logger
	options  periodicOptions

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	wg      sync.WaitGroup
}

func NewPeriodic(name string, interval time.Duration, job Job, opts ...PeriodicOption) (*Periodic, error) {
	if job == nil {
		return nil, errors.New("job cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	// 默認選項
	options := periodicOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Periodic{
		name:     name,
		interval: interval,
		job:      job,
		logger:   options.logger.With(slog.String("caller", "Periodic"), slog.String("job", name)),
		options:  options,
	}, nil
}

// Run 開始排程，直到 ctx 結束；返回前會等待執行中的工作完成
func (p *Periodic) Run(ctx context.Context) error {
	p.logger.Info("Start periodic job", slog.Duration("interval", p.interval))
	defer p.logger.Info("Periodic job stopped")
	defer p.wg.Wait()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.options.runOnStart {
		p.trigger(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

// Runs 回傳已經開始執行的次數
func (p *Periodic) Runs() int64 {
	return p.runs.Load()
}

// Skipped 回傳因上一次尚未結束或沒有取得鎖而略過的次數
func (p *Periodic) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Periodic) trigger(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Warn("Previous run still in progress, skip this tick")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.execute(ctx)
	}()
}

func (p *Periodic) execute(ctx context.Context) {
	if p.options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.options.timeout)
		defer cancel()
	}

	if p.options.locker != nil {
		lockCtx, release, err := p.options.locker.TryLock(ctx)
		if err != nil {
			p.skipped.Add(1)
			p.logger.Info("Lock not acquired, skip this run", slog.Any("error", err))
			return
		}
		defer release()
		ctx = lockCtx
	}

	p.runs.Add(1)
	start := time.Now()
	if err := p.job(ctx); err != nil {
		p.logger.Error("Periodic job failed", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
		return
	}
	p.logger.Debug("Periodic job finished", slog.Duration("duration", time.Since(start)))
}
