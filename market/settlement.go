package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bazaar/auction"
)

// SettledWinner 是結算報告中保留給得標者的拍賣
type SettledWinner struct {
	ProductID   string          `json:"productId"`
	Product     string          `json:"product"`
	Winner      string          `json:"winner"`
	WinnerEmail string          `json:"winnerEmail"`
	WinningBid  decimal.Decimal `json:"winningBid"`
	BidCount    int             `json:"bidCount"`
}

// SettledWithoutBids 是結算報告中沒有出價而結束的拍賣
type SettledWithoutBids struct {
	ProductID string `json:"productId"`
	Product   string `json:"product"`
	Message   string `json:"message"`
}

// SweepFailure 是批次處理中單一商品的失敗紀錄
type SweepFailure struct {
	ProductID string `json:"productId"`
	Product   string `json:"product"`
	Error     string `json:"error"`
}

// SettlementReport 是一次結算批次的結果
type SettlementReport struct {
	StartedAt        time.Time            `json:"startedAt"`
	Duration         time.Duration        `json:"duration"`
	Processed        int                  `json:"processed"`
	Failed           int                  `json:"failed"`
	Winners          []SettledWinner      `json:"winners"`
	EndedWithoutBids []SettledWithoutBids `json:"endedWithoutBids"`
	Failures         []SweepFailure       `json:"failures"`
}

// RunSettlementSweep 結算所有已到期但仍為 active 的拍賣。
//
// 每個商品獨立處理，單一商品失敗只會記錄在報告中，不會中斷整批。
// 只有列出待結算商品的查詢失敗時才會回傳錯誤。
// 其他實例或請求已經結算過的商品會被略過，因此重複執行不會產生重複的報告項目。
func (s *Service) RunSettlementSweep(ctx context.Context) (SettlementReport, error) {
	const op = "RunSettlementSweep"
	now := s.now()
	report := SettlementReport{
		StartedAt:        now,
		Winners:          []SettledWinner{},
		EndedWithoutBids: []SettledWithoutBids{},
		Failures:         []SweepFailure{},
	}

	records, err := func() ([]auction.Record, error) {
		ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
		defer cancel()
		return s.store.ListExpiredActive(ctx, now)
	}()
	if err != nil {
		return report, fmt.Errorf("[%s] Fail to list expired auctions, err=%w", op, err)
	}
	s.logger.Info("Start settlement sweep", slog.Int("candidates", len(records)))

	for _, candidate := range records {
		var outcome auction.Outcome
		_, settled, err := s.mutate(ctx, candidate.ID, func(r auction.Record) (auction.Record, error) {
			if !auction.NeedsSettlement(r, now) {
				return r, errNoChange
			}
			next, o, err := auction.Settle(r, now)
			outcome = o
			return next, err
		})
		switch {
		case errors.Is(err, errNoChange), errors.Is(err, ErrNotFound):
			s.logger.Debug("Skip settled auction", slog.String("productId", candidate.ID))
			continue
		case err != nil:
			s.logger.Error("Fail to settle auction", slog.String("productId", candidate.ID), slog.Any("error", err))
			report.Failures = append(report.Failures, SweepFailure{
				ProductID: candidate.ID,
				Product:   candidate.Name,
				Error:     err.Error(),
			})
			continue
		}

		report.Processed++
		switch outcome {
		case auction.OutcomeReserved:
			report.Winners = append(report.Winners, SettledWinner{
				ProductID:   settled.ID,
				Product:     settled.Name,
				Winner:      settled.BestBidder,
				WinnerEmail: settled.BestBidderEmail,
				WinningBid:  settled.CurrentPrice,
				BidCount:    settled.BidCount(),
			})
			s.publish(newEvent(EventAuctionReserved, settled, now))
		case auction.OutcomeEndedNoBids:
			report.EndedWithoutBids = append(report.EndedWithoutBids, SettledWithoutBids{
				ProductID: settled.ID,
				Product:   settled.Name,
				Message:   auction.NoBidsEndedMessage,
			})
			s.publish(newEvent(EventAuctionEnded, settled, now))
		}
	}

	report.Failed = len(report.Failures)
	report.Duration = s.now().Sub(now)
	s.logger.Info("Settlement sweep finished",
		slog.Int("processed", report.Processed),
		slog.Int("winners", len(report.Winners)),
		slog.Int("endedWithoutBids", len(report.EndedWithoutBids)),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// Reserve 手動將單一商品保留給得標者，已經保留過的商品直接回傳
func (s *Service) Reserve(ctx context.Context, id string) (auction.Record, error) {
	now := s.now()
	_, reserved, err := s.mutate(ctx, id, func(r auction.Record) (auction.Record, error) {
		if r.IsReservedWinner() {
			return r, errNoChange
		}
		return auction.ReserveForWinner(r, now)
	})
	if errors.Is(err, errNoChange) {
		return reserved, nil
	}
	if err != nil {
		return auction.Record{}, err
	}
	s.logger.Info("Auction reserved for winner", slog.String("productId", reserved.ID), slog.String("winner", reserved.BestBidder))
	s.publish(newEvent(EventAuctionReserved, reserved, now))
	return reserved, nil
}
