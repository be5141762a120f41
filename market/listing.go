package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bazaar/auction"
)

// CreateListing 建立新商品，描述會先經過 HTML 過濾
func (s *Service) CreateListing(ctx context.Context, actor Actor, in auction.NewListing) (auction.Record, error) {
	const op = "CreateListing"
	now := s.now()
	in.OwnerID = actor.ID
	in.OwnerEmail = actor.Email
	in.Description = s.options.sanitizer.Sanitize(in.Description)

	r, err := auction.New(s.options.idFunc(), in, s.options.policy, now)
	if err != nil {
		return auction.Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
	defer cancel()
	created, err := s.store.Create(ctx, r)
	if err != nil {
		return auction.Record{}, fmt.Errorf("[%s] Fail to create product, err=%w", op, err)
	}
	s.logger.Info("Product created",
		slog.String("productId", created.ID),
		slog.String("owner", created.OwnerID),
		slog.Bool("auction", created.AuctionEnabled))
	return created, nil
}

// GetListing 讀取商品
func (s *Service) GetListing(ctx context.Context, id string) (auction.Record, error) {
	return s.get(ctx, id)
}

// UpdateListing 套用擁有者的修改，回傳修改後的商品與被忽略的欄位
func (s *Service) UpdateListing(ctx context.Context, actor Actor, id string, patch auction.Patch) (auction.Record, []string, error) {
	now := s.now()
	if patch.Description != nil {
		sanitized := s.options.sanitizer.Sanitize(*patch.Description)
		patch.Description = &sanitized
	}

	var ignored []string
	_, updated, err := s.mutate(ctx, id, func(r auction.Record) (auction.Record, error) {
		if !actor.owns(r) {
			return r, ErrNotOwner
		}
		next, dropped, err := auction.ApplyPatch(r, patch, s.options.policy, now)
		ignored = dropped
		return next, err
	})
	if err != nil {
		return auction.Record{}, nil, err
	}
	if len(ignored) > 0 {
		s.logger.Info("Ignore frozen fields", slog.String("productId", id), slog.Any("fields", ignored))
	}
	return updated, ignored, nil
}

// DeleteListing 刪除商品，拍賣進行中的商品不能刪除
func (s *Service) DeleteListing(ctx context.Context, actor Actor, id string) error {
	const op = "DeleteListing"
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		r, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if !actor.owns(r) {
			return ErrNotOwner
		}
		if err := auction.CheckDeletable(r); err != nil {
			return err
		}
		err = func() error {
			ctx, cancel := context.WithTimeout(ctx, s.options.dbTimeout)
			defer cancel()
			return s.store.Delete(ctx, r)
		}()
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return fmt.Errorf("[%s] Fail to delete product, id=%s, err=%w", op, id, err)
		}
		s.logger.Info("Product deleted", slog.String("productId", id))
		return nil
	}
	return lastErr
}

// CancelListing 由擁有者取消尚未有人出價的商品
func (s *Service) CancelListing(ctx context.Context, actor Actor, id string) (auction.Record, error) {
	now := s.now()
	_, cancelled, err := s.mutate(ctx, id, func(r auction.Record) (auction.Record, error) {
		if !actor.owns(r) {
			return r, ErrNotOwner
		}
		return auction.Cancel(r, now)
	})
	if err != nil {
		return auction.Record{}, err
	}
	s.logger.Info("Product cancelled", slog.String("productId", id))
	if cancelled.AuctionEnabled {
		s.publish(newEvent(EventAuctionEnded, cancelled, now))
	}
	return cancelled, nil
}

// Purchase 直接購買商品
func (s *Service) Purchase(ctx context.Context, id string, req auction.PurchaseRequest) (auction.Record, error) {
	now := s.now()
	_, purchased, err := s.mutate(ctx, id, func(r auction.Record) (auction.Record, error) {
		return auction.Purchase(r, req, now)
	})
	if err != nil {
		return auction.Record{}, err
	}
	s.logger.Info("Product purchased",
		slog.String("productId", id),
		slog.String("buyer", req.BuyerEmail),
		slog.Int("quantity", req.Quantity),
		slog.Int("stockLeft", purchased.Stock))
	return purchased, nil
}
