package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"bazaar/adapters/memory"
	natsAdapter "bazaar/adapters/nats"
	"bazaar/adapters/postgres"
	redisAdapter "bazaar/adapters/redis"
	internalS3 "bazaar/adapters/s3"
	"bazaar/adapters/sse"
	"bazaar/auction"
	"bazaar/market"
	"bazaar/scheduler"
)

// NewServer 依照設定連線所有外部依賴並組成伺服器。
// 任何依賴無法連線時回傳錯誤，已經開啟的連線會被關閉。
func NewServer(ctx context.Context, config ServerConfig) (_ *ServerImpl, err error) {
	const op = "NewServer"
	logger := slog.Default()
	var opts []ServerOption
	var cleanups []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()
	// 加入關閉時需要釋放的資源，建立失敗時也會釋放
	addCloser := func(name string, stop func()) {
		cleanups = append(cleanups, stop)
		opts = append(opts, WithServerComponent(name, nil, stop))
	}

	// 初始化商品儲存層
	var store market.Store
	switch config.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory store, data will be lost on restart")
		store = memory.NewStore()
		opts = append(opts, WithServerImageStore(memory.NewImages()))
	case "", "postgres":
		db, err := postgres.Open(postgres.DSN(config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema), config.DB.Schema)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to open database, err=%w", op, err)
		}
		if sqlDB, err := db.DB(); err == nil {
			addCloser("postgres", func() { sqlDB.Close() })
		}
		repo, err := postgres.NewRepository(db, postgres.WithRepositoryLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create repository, err=%w", op, err)
		}
		if err := repo.Ping(ctx); err != nil {
			return nil, fmt.Errorf("[%s] Fail to ping database, err=%w", op, err)
		}
		if config.DB.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		store = repo
		opts = append(opts, WithServerImageStore(repo), WithServerHealthCheck("postgres", repo.Ping))
	default:
		return nil, fmt.Errorf("[%s] Unknown store driver, driver=%s", op, config.StoreDriver)
	}

	// 初始化Redis連線
	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = newRedisClient(config.Redis)
		addCloser("redis", func() { redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("[%s] Fail to ping redis, err=%w", op, err)
		}
		opts = append(opts, WithServerHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	// 初始化得標通知
	var notifier market.INotifier
	switch config.NotifyTransport {
	case "", "log":
		notifier = market.NewLogNotifier(logger)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("[%s] Redis notify transport requires redis-addr", op)
		}
		notifier, err = redisAdapter.NewStreamNotifier(
			redisClient,
			config.Redis.StreamKeys.Winners,
			redisAdapter.WithStreamNotifierLogger(logger),
			redisAdapter.WithStreamNotifierMaxLen(config.Redis.StreamMaxLen),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create stream notifier, err=%w", op, err)
		}
	case "nats":
		conn, js, err := natsAdapter.Connect(ctx, config.NATS.URL, config.NATS.Stream, config.NATS.Subject)
		if err != nil {
			return nil, err
		}
		addCloser("nats", func() {
			if err := conn.Drain(); err != nil {
				conn.Close()
			}
		})
		notifier, err = natsAdapter.NewNotifier(
			js,
			natsAdapter.WithNotifierLogger(logger),
			natsAdapter.WithNotifierSubject(config.NATS.Subject),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create nats notifier, err=%w", op, err)
		}
		opts = append(opts, WithServerHealthCheck("nats", func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("nats is not connected")
			}
			return nil
		}))
	default:
		return nil, fmt.Errorf("[%s] Unknown notify transport, transport=%s", op, config.NotifyTransport)
	}

	// 初始化SSE事件
	//  - 有Redis時事件先寫入stream，所有實例再從stream讀取後推送給各自的連線
	//  - 沒有Redis時直接在本實例內推送
	hub := sse.NewHub(sse.WithHubLogger(logger))
	opts = append(opts, WithServerHub(hub))
	var publisher market.IPublisher = hub
	if redisClient != nil {
		producer, err := redisAdapter.NewEventPublisher(
			redisClient,
			config.Redis.StreamKeys.Events,
			redisAdapter.WithProducerLogger[market.Event](logger),
			redisAdapter.WithProducerMaxLen[market.Event](config.Redis.StreamMaxLen),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create event publisher, err=%w", op, err)
		}
		consumer, err := redisAdapter.NewEventSubscriber(
			redisClient,
			config.Redis.StreamKeys.Events,
			redisAdapter.WithConsumerLogger[market.Event](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create event subscriber, err=%w", op, err)
		}
		publisher = producer
		opts = append(opts,
			WithServerComponent("event-publisher", producer.Start, producer.Close),
			WithServerComponent("event-subscriber", consumer.Start, consumer.Close),
			WithServerWorker("event-relay", func(ctx context.Context) {
				hub.Run(ctx, consumer.Subscribe())
			}),
		)
	}

	// 初始化商品服務
	service, err := market.NewService(
		store,
		market.WithServiceLogger(logger),
		market.WithServicePublisher(publisher),
		market.WithServiceNotifier(notifier),
		market.WithServicePolicy(buildPolicy(config.Policy)),
		market.WithServiceDBTimeout(config.DB.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create market service, err=%w", op, err)
	}

	// 初始化S3客戶端
	if config.S3.Bucket != "" {
		s3Operator, err := internalS3.NewS3Operator(ctx, internalS3.Config{
			Endpoint:        config.S3.Endpoint,
			Region:          config.S3.Region,
			AccessKeyID:     config.S3.AccessKeyID,
			SecretAccessKey: config.S3.SecretAccessKey,
			Bucket:          config.S3.Bucket,
			PublicBaseURL:   config.S3.PublicBaseURL,
			UsePathStyle:    config.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
		}
		opts = append(opts, WithServerUploader(s3Operator))
	} else {
		logger.Warn("S3 bucket is not configured, image upload is disabled")
	}

	// 初始化定期批次
	sweeps := []struct {
		name    string
		config  SweepConfig
		lockKey string
		job     scheduler.Job
	}{
		{
			name:    "settlement",
			config:  config.Settlement,
			lockKey: config.Redis.LockKeys.Settlement,
			job: func(ctx context.Context) error {
				_, err := service.RunSettlementSweep(ctx)
				return err
			},
		},
		{
			name:    "notification",
			config:  config.Notification,
			lockKey: config.Redis.LockKeys.Notification,
			job: func(ctx context.Context) error {
				_, err := service.RunNotificationSweep(ctx)
				return err
			},
		},
	}
	for _, sweep := range sweeps {
		if sweep.config.Interval <= 0 {
			logger.Info("Sweep disabled on this instance", slog.String("sweep", sweep.name))
			continue
		}
		periodicOpts := []scheduler.PeriodicOption{
			scheduler.WithPeriodicLogger(logger),
			scheduler.WithPeriodicTimeout(sweep.config.Timeout),
			scheduler.WithPeriodicRunOnStart(true),
		}
		if redisClient != nil {
			lock, err := redisAdapter.NewSweepLock(redisClient, sweep.lockKey, redisAdapter.WithSweepLockExpiry(lockExpiry(sweep.config.Timeout)))
			if err != nil {
				return nil, fmt.Errorf("[%s] Fail to create sweep lock, sweep=%s, err=%w", op, sweep.name, err)
			}
			periodicOpts = append(periodicOpts, scheduler.WithPeriodicLocker(lock))
		}
		periodic, err := scheduler.NewPeriodic(sweep.name, sweep.config.Interval, sweep.job, periodicOpts...)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create periodic sweep, sweep=%s, err=%w", op, sweep.name, err)
		}
		opts = append(opts, WithServerWorker(sweep.name+"-sweep", func(ctx context.Context) {
			periodic.Run(ctx)
		}))
	}

	opts = append(opts,
		WithServerLogger(logger),
		WithServerIssuer(config.Auth.Issuer),
		WithServerKeepAlive(config.SSEKeepAlive),
		WithServerUploadLimit(config.Upload.LimitPerHour),
		WithServerMaxImageSize(config.Upload.MaxSize),
	)
	return New(service, []byte(config.Auth.Secret), opts...)
}

// buildPolicy 以設定覆寫預設的拍賣參數範圍，未設定的欄位維持預設值
func buildPolicy(config PolicyConfig) auction.Policy {
	policy := auction.DefaultPolicy()
	if config.MinIncrementFloor.IsPositive() {
		policy.MinIncrementFloor = config.MinIncrementFloor
	}
	if config.MinIncrementCeiling.IsPositive() {
		policy.MinIncrementCeiling = config.MinIncrementCeiling
	}
	if config.MinDurationDays > 0 {
		policy.MinDurationDays = config.MinDurationDays
	}
	if config.MaxDurationDays > 0 {
		policy.MaxDurationDays = config.MaxDurationDays
	}
	return policy
}

// lockExpiry 讓鎖的有效時間比單次批次的時間上限稍長
func lockExpiry(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout + 10*time.Second
}

// newRedisClient 關閉維護通知，不支援 CLIENT MAINT_NOTIFICATIONS 的伺服器不會在握手時記錄錯誤，
// Close 後也不會留下背景 goroutine
func newRedisClient(config RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                     config.Addr,
		Password:                 config.Password,
		DB:                       config.DB,
		MaintNotificationsConfig: &maintnotifications.Config{Mode: maintnotifications.ModeDisabled},
	})
}
