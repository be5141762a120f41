package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"bazaar/auction"
	"bazaar/market"
	"bazaar/models"
)

// Open 依照連線資訊開啟 PostgreSQL 連線，所有資料表都建立在指定的 schema 下
func Open(dsn string, dbSchema string) (*gorm.DB, error) {
	const op = "Open"
	config := &gorm.Config{TranslateError: true}
	if dbSchema != "" {
		config.NamingStrategy = schema.NamingStrategy{TablePrefix: dbSchema + "."}
	}
	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	return db, nil
}

// DSN 組合 PostgreSQL 的連線字串
func DSN(user, password, host string, port int, database, dbSchema string) string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, port, database)
	if dbSchema != "" {
		dsn += "&search_path=" + dbSchema
	}
	return dsn
}

type repositoryOptions struct {
	logger *slog.Logger
}

type RepositoryOption func(*repositoryOptions)

// WithRepositoryLogger 設置日誌記錄器
func WithRepositoryLogger(logger *slog.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = logger
	}
}

// Repository 以 gorm 實作 market.Store，
// 寫入時以 version 欄位做 compare-and-swap 並在同一個交易中附加新的出價紀錄。
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, opts ...RepositoryOption) (*Repository, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	options := repositoryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Repository{
		db:     db,
		logger: options.logger.With(slog.String("caller", "Repository")),
	}, nil
}

// Migrate 建立或更新資料表
func (r *Repository) Migrate(ctx context.Context) error {
	const op = "Migrate"
	if err := r.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}
	return nil
}

// Ping 檢查資料庫連線
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func orderBySeq(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "seq"}})
}

func (r *Repository) Create(ctx context.Context, record auction.Record) (auction.Record, error) {
	const op = "Create"
	product := models.NewProduct(record)
	product.Version = 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&product).Error; err != nil {
			return err
		}
		if len(product.Bids) > 0 {
			return tx.Create(&product.Bids).Error
		}
		return nil
	})
	if err != nil {
		return auction.Record{}, fmt.Errorf("[%s] Fail to create product, id=%s, err=%w", op, record.ID, err)
	}
	return product.Record(), nil
}

func (r *Repository) Get(ctx context.Context, id string) (auction.Record, error) {
	const op = "Get"
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Bids", orderBySeq).
		Where("id = ?", id).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auction.Record{}, fmt.Errorf("[%s] id=%s, err=%w", op, id, market.ErrNotFound)
	}
	if err != nil {
		return auction.Record{}, fmt.Errorf("[%s] Fail to find product, id=%s, err=%w", op, id, err)
	}
	return product.Record(), nil
}

func (r *Repository) Update(ctx context.Context, prev, next auction.Record) (auction.Record, error) {
	const op = "Update"
	if len(next.Bids) < len(prev.Bids) {
		return auction.Record{}, fmt.Errorf("[%s] Bid history cannot shrink, id=%s", op, prev.ID)
	}
	next.ID = prev.ID
	next.Version = prev.Version + 1
	product := models.NewProduct(next)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Product{}).
			Where("id = ? AND version = ?", prev.ID, prev.Version).
			Updates(product.UpdateColumns())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.missingOrConflict(tx, prev.ID)
		}
		if appended := product.Bids[len(prev.Bids):]; len(appended) > 0 {
			if err := tx.Create(&appended).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return auction.Record{}, fmt.Errorf("[%s] id=%s, version=%d, err=%w", op, prev.ID, prev.Version, err)
	}
	r.logger.Debug("Product updated", slog.String("productId", prev.ID), slog.Int64("version", next.Version))
	return product.Record(), nil
}

func (r *Repository) missingOrConflict(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&models.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return market.ErrNotFound
	}
	return market.ErrConflict
}

func (r *Repository) Delete(ctx context.Context, record auction.Record) error {
	const op = "Delete"
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND version = ?", record.ID, record.Version).Delete(&models.Product{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.missingOrConflict(tx, record.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[%s] id=%s, version=%d, err=%w", op, record.ID, record.Version, err)
	}
	return nil
}

// find 讀取符合條件的商品與出價紀錄，依結束時間與 ID 排序
func (r *Repository) find(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) ([]auction.Record, error) {
	var products []models.Product
	err := scope(r.db.WithContext(ctx).Model(&models.Product{})).
		Preload("Bids", orderBySeq).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "ends_at"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to query products, err=%w", op, err)
	}
	return lo.Map(products, func(p models.Product, _ int) auction.Record {
		return p.Record()
	}), nil
}

func (r *Repository) ListExpiredActive(ctx context.Context, now time.Time) ([]auction.Record, error) {
	return r.find(ctx, "ListExpiredActive", func(db *gorm.DB) *gorm.DB {
		return db.Where("auction_enabled = ? AND status = ? AND ends_at <= ?", true, auction.StatusActive, now.UTC())
	})
}

func (r *Repository) ListPendingNotification(ctx context.Context) ([]auction.Record, error) {
	return r.find(ctx, "ListPendingNotification", func(db *gorm.DB) *gorm.DB {
		return db.Where("reserved_for_winner = ? AND winner_notified = ? AND best_bidder <> '' AND status IN ?",
			true, false, []auction.Status{auction.StatusReserved, auction.StatusEnded})
	})
}

func (r *Repository) ListActive(ctx context.Context, now time.Time, page market.Page) ([]auction.Record, int64, error) {
	const op = "ListActive"
	page = page.Normalize()
	active := func(db *gorm.DB) *gorm.DB {
		return db.Where("auction_enabled = ? AND status = ? AND ends_at > ?", true, auction.StatusActive, now.UTC())
	}

	var total int64
	if err := active(r.db.WithContext(ctx).Model(&models.Product{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("[%s] Fail to count products, err=%w", op, err)
	}
	records, err := r.find(ctx, op, func(db *gorm.DB) *gorm.DB {
		return active(db).Offset(page.Offset()).Limit(page.Size)
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *Repository) ListReservedFor(ctx context.Context, email string) ([]auction.Record, error) {
	return r.find(ctx, "ListReservedFor", func(db *gorm.DB) *gorm.DB {
		return db.Where("reserved_for_winner = ? AND status IN ? AND LOWER(best_bidder_email) = ?",
			true, []auction.Status{auction.StatusReserved, auction.StatusEnded}, strings.ToLower(strings.TrimSpace(email)))
	})
}

type statusRow struct {
	Status    string
	Count     int64
	AvgPrice  decimal.Decimal
	TotalBids int64
}

func (r *Repository) AggregateByStatus(ctx context.Context) ([]market.StatusAggregate, error) {
	const op = "AggregateByStatus"
	var rows []statusRow
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("status, COUNT(*) AS count, COALESCE(AVG(current_price), 0) AS avg_price, COALESCE(SUM(bid_count), 0) AS total_bids").
		Where("auction_enabled = ?", true).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to aggregate products, err=%w", op, err)
	}

	out := lo.Map(rows, func(row statusRow, _ int) market.StatusAggregate {
		return market.StatusAggregate{
			Status:       auction.Status(row.Status),
			Count:        row.Count,
			AveragePrice: row.AvgPrice,
			TotalBids:    row.TotalBids,
		}
	})
	slices.SortFunc(out, func(a, b market.StatusAggregate) int {
		return slices.Index(auction.Statuses, a.Status) - slices.Index(auction.Statuses, b.Status)
	})
	return out, nil
}

func (r *Repository) CountActive(ctx context.Context, now time.Time) (int64, int64, error) {
	const op = "CountActive"
	var row struct {
		Live    int64
		Expired int64
	}
	now = now.UTC()
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("COALESCE(SUM(CASE WHEN ends_at > ? THEN 1 ELSE 0 END), 0) AS live, COALESCE(SUM(CASE WHEN ends_at <= ? THEN 1 ELSE 0 END), 0) AS expired", now, now).
		Where("auction_enabled = ? AND status = ?", true, auction.StatusActive).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("[%s] Fail to count active auctions, err=%w", op, err)
	}
	return row.Live, row.Expired, nil
}
