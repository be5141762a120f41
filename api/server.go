package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bazaar/adapters/memory"
	"bazaar/adapters/s3"
	"bazaar/adapters/sse"
	"bazaar/market"
)

// component 是隨伺服器啟動與關閉的背景元件，start 不能阻塞
type component struct {
	name  string
	start func()
	stop  func()
}

// worker 是持續執行直到 ctx 結束的背景工作
type worker struct {
	name string
	run  func(ctx context.Context)
}

type serverOptions struct {
	logger       *slog.Logger
	hub          *sse.Hub
	uploader     s3.IUploader
	images       IImageStore
	issuer       string
	keepAlive    time.Duration
	uploadLimit  int64
	maxImageSize int64
	components   []component
	workers      []worker
	checks       map[string]func(context.Context) error
}

type ServerOption func(*serverOptions)

// WithServerLogger 設置日誌記錄器
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithServerHub 設置推送即時事件的 Hub
func WithServerHub(hub *sse.Hub) ServerOption {
	return func(o *serverOptions) {
		o.hub = hub
	}
}

// WithServerUploader 設置圖片上傳的物件儲存
func WithServerUploader(uploader s3.IUploader) ServerOption {
	return func(o *serverOptions) {
		o.uploader = uploader
	}
}

// WithServerImageStore 設置圖片上傳紀錄的儲存位置
func WithServerImageStore(images IImageStore) ServerOption {
	return func(o *serverOptions) {
		o.images = images
	}
}

// WithServerIssuer 設置權杖必須符合的 issuer，空字串表示不檢查
func WithServerIssuer(issuer string) ServerOption {
	return func(o *serverOptions) {
		o.issuer = issuer
	}
}

// WithServerKeepAlive 設置 SSE 連線送出 ping 的間隔
func WithServerKeepAlive(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.keepAlive = d
	}
}

// WithServerUploadLimit 設置每個使用者每小時可以上傳的圖片數量，0 表示不限制
func WithServerUploadLimit(n int64) ServerOption {
	return func(o *serverOptions) {
		o.uploadLimit = n
	}
}

// WithServerMaxImageSize 設置單張圖片的大小上限
func WithServerMaxImageSize(size int64) ServerOption {
	return func(o *serverOptions) {
		o.maxImageSize = size
	}
}

// WithServerComponent 加入隨伺服器啟動與關閉的元件，關閉順序與加入順序相反
func WithServerComponent(name string, start func(), stop func()) ServerOption {
	return func(o *serverOptions) {
		o.components = append(o.components, component{name: name, start: start, stop: stop})
	}
}

// WithServerWorker 加入背景工作，Close 時會取消 ctx 並等待結束
func WithServerWorker(name string, run func(ctx context.Context)) ServerOption {
	return func(o *serverOptions) {
		o.workers = append(o.workers, worker{name: name, run: run})
	}
}

// WithServerHealthCheck 加入 /healthz 回報的依賴檢查
func WithServerHealthCheck(name string, check func(context.Context) error) ServerOption {
	return func(o *serverOptions) {
		o.checks[name] = check
	}
}

type ServerImpl struct {
	service  *market.Service
	hub      *sse.Hub
	uploader s3.IUploader
	images   IImageStore
	secret   []byte
	issuer   string
	logger   *slog.Logger
	options  serverOptions

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

// New 以已經建立好的服務組成 HTTP 伺服器
func New(service *market.Service, secret []byte, opts ...ServerOption) (*ServerImpl, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth secret cannot be empty")
	}

	// 默認選項
	options := serverOptions{
		logger:       slog.Default(),
		keepAlive:    15 * time.Second,
		uploadLimit:  20,
		maxImageSize: 5 << 20,
		checks:       map[string]func(context.Context) error{},
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.keepAlive <= 0 {
		return nil, errors.New("keep alive interval must be positive")
	}
	if options.hub == nil {
		options.hub = sse.NewHub(sse.WithHubLogger(options.logger))
	}
	if options.images == nil {
		options.images = memory.NewImages()
	}

	return &ServerImpl{
		service:  service,
		hub:      options.hub,
		uploader: options.uploader,
		images:   options.images,
		secret:   secret,
		issuer:   options.issuer,
		logger:   options.logger.With(slog.String("caller", "Server")),
		options:  options,
	}, nil
}

// Router 建立所有 /api 路由
func (impl *ServerImpl) Router() *gin.Engine {
	useJSONFieldNames()
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	api.GET("/healthz", impl.GetHealth)

	user := impl.requireUser()
	admin := impl.requireAdmin()

	products := api.Group("/products")
	products.POST("", user, impl.PostProduct)
	products.GET("/:id", impl.GetProduct)
	products.PATCH("/:id", user, impl.PatchProduct)
	products.DELETE("/:id", user, impl.DeleteProduct)
	products.POST("/:id/cancel", user, impl.PostProductCancel)
	products.POST("/:id/purchase", impl.PostProductPurchase)

	api.POST("/images", user, impl.requireUploader, impl.PostImage)

	auctions := api.Group("/auctions")
	auctions.GET("/active", impl.GetActiveAuctions)
	auctions.GET("/reserved", impl.GetReservedAuctions)
	auctions.POST("/:id/bids", impl.PostAuctionBid)
	auctions.GET("/:id/bids", impl.GetAuctionBids)
	auctions.GET("/:id/events", sse.HeadersMiddleware(), impl.GetAuctionEvents)

	manage := auctions.Group("", user, admin)
	manage.POST("/process-expired", impl.PostProcessExpired)
	manage.POST("/notify-winners", impl.PostNotifyWinners)
	manage.GET("/stats", impl.GetAuctionStats)
	manage.POST("/:id/reserve", impl.PostAuctionReserve)
	manage.POST("/:id/notify-winner", impl.PostAuctionNotifyWinner)

	return router
}

func (impl *ServerImpl) requireUploader(c *gin.Context) {
	if impl.uploader == nil {
		abortWithError(c, http.StatusServiceUnavailable, "Unavailable", "image storage is not configured")
		return
	}
	c.Next()
}

// Health check
// (GET /healthz)
func (impl *ServerImpl) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(impl.options.checks))
	for name, check := range impl.options.checks {
		if err := check(ctx); err != nil {
			impl.logger.Warn("Health check failed", slog.String("dependency", name), slog.Any("error", err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

func (impl *ServerImpl) Start() {
	for _, comp := range impl.options.components {
		if comp.start == nil {
			continue
		}
		impl.logger.Info("Start component", slog.String("component", comp.name))
		comp.start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	for _, w := range impl.options.workers {
		impl.logger.Info("Start worker", slog.String("worker", w.name))
		impl.wg.Add(1)
		go func(w worker) {
			defer impl.wg.Done()
			defer impl.logger.Info("Worker stopped", slog.String("worker", w.name))
			w.run(ctx)
		}(w)
	}
}

func (impl *ServerImpl) Close() {
	// 關閉背景工作
	if impl.cancelFunc != nil {
		impl.cancelFunc()
	}
	impl.wg.Wait()
	// 依相反順序關閉元件
	for i := len(impl.options.components) - 1; i >= 0; i-- {
		comp := impl.options.components[i]
		if comp.stop != nil {
			comp.stop()
		}
	}
	// 關閉所有SSE連線
	impl.hub.Close()
}

// CloseStreams 結束所有 SSE 連線，讓 http.Server 不必等到逾時才能關閉
func (impl *ServerImpl) CloseStreams() {
	impl.hub.Close()
}
