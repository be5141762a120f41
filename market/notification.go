package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bazaar/auction"
)

// NotificationResult 是單一商品的通知結果
type NotificationResult struct {
	ProductID       string `json:"productId"`
	Product         string `json:"product"`
	Winner          string `json:"winner"`
	WinnerEmail     string `json:"winnerEmail"`
	Notified        bool   `json:"notified"`
	AlreadyNotified bool   `json:"alreadyNotified,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NotificationReport 是一次通知批次的結果
type NotificationReport struct {
	StartedAt time.Time            `json:"startedAt"`
	Duration  time.Duration        `json:"duration"`
	Notified  int                  `json:"notified"`
	Failed    int                  `json:"failed"`
	Results   []NotificationResult `json:"results"`
}

// RunNotificationSweep 通知所有已保留但尚未通知的得標者。
// 通知失敗的商品維持未通知，下一次批次會再嘗試，因此得標者至少會收到一次通知。
func (s *Service) RunNotificationSweep(ctx context.Context) (NotificationReport, error) {
	const op = "RunNotificationSweep"
	now := s.now()
	report := NotificationReport{StartedAt: now, Results: []NotificationResult{}}

	records, err := func() ([]auction.Record, error) {
		ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
		defer cancel()
		return s.store.ListPendingNotification(ctx)
	}()
	if err != nil {
		return report, fmt.Errorf("[%s] Fail to list pending notifications, err=%w", op, err)
	}

	for _, r := range records {
		result := s.notify(ctx, r, now)
		if result.Notified {
			report.Notified++
		} else if result.Error != "" {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}

	report.Duration = s.now().Sub(now)
	s.logger.Info("Notification sweep finished",
		slog.Int("notified", report.Notified),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// NotifyWinner 通知單一商品的得標者。已經通知過的商品只回報 AlreadyNotified，不會再次通知。
func (s *Service) NotifyWinner(ctx context.Context, id string) (NotificationResult, error) {
	now := s.now()
	r, err := s.get(ctx, id)
	if err != nil {
		return NotificationResult{}, err
	}
	if !r.IsReservedWinner() {
		return NotificationResult{}, auction.ErrNotReserved
	}
	if r.WinnerNotified {
		return NotificationResult{
			ProductID:       r.ID,
			Product:         r.Name,
			Winner:          r.BestBidder,
			WinnerEmail:     r.BestBidderEmail,
			AlreadyNotified: true,
		}, nil
	}
	return s.notify(ctx, r, now), nil
}

// notify 呼叫通知服務，成功後才把 winnerNotified 寫回資料庫
func (s *Service) notify(ctx context.Context, r auction.Record, now time.Time) NotificationResult {
	result := NotificationResult{
		ProductID:   r.ID,
		Product:     r.Name,
		Winner:      r.BestBidder,
		WinnerEmail: r.BestBidderEmail,
	}
	logger := s.logger.With(slog.String("productId", r.ID))

	if err := s.options.notifier.NotifyWinner(ctx, newWinnerNotice(r)); err != nil {
		logger.Error("Fail to notify winner", slog.Any("error", err))
		result.Error = err.Error()
		return result
	}

	_, marked, err := s.mutate(ctx, r.ID, func(current auction.Record) (auction.Record, error) {
		return auction.MarkWinnerNotified(current, now)
	})
	switch {
	case errors.Is(err, auction.ErrAlreadyNotified):
		// 其他批次在通知期間已經寫入
		result.AlreadyNotified = true
		return result
	case err != nil:
		logger.Error("Winner notified but fail to mark record", slog.Any("error", err))
		result.Error = err.Error()
		return result
	}

	result.Notified = true
	logger.Info("Winner notified", slog.String("winner", marked.BestBidder))
	s.publish(newEvent(EventWinnerNotified, marked, now))
	return result
}
