package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type ServerConfig struct {
	// StoreDriver 為 postgres 或 memory
	StoreDriver string
	// NotifyTransport 為 redis、nats 或 log
	NotifyTransport string

	DB           DBConfig
	Redis        RedisConfig
	NATS         NATSConfig
	S3           S3Config
	Auth         AuthConfig
	Settlement   SweepConfig
	Notification SweepConfig
	Policy       PolicyConfig
	Upload       UploadConfig

	SSEKeepAlive time.Duration
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
	Timeout  time.Duration
	Migrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	StreamKeys   RedisStreamKeys
	StreamMaxLen int64
	LockKeys     RedisLockKeys
}

type RedisStreamKeys struct {
	Events  string
	Winners string
}

type RedisLockKeys struct {
	Settlement   string
	Notification string
}

type NATSConfig struct {
	URL     string
	Stream  string
	Subject string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
	UsePathStyle    bool
}

type AuthConfig struct {
	// Secret 是 HS256 簽章使用的密鑰
	Secret string
	Issuer string
}

// SweepConfig 是定期批次的設定，Interval 為 0 表示不在本實例執行
type SweepConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

type PolicyConfig struct {
	MinIncrementFloor   decimal.Decimal
	MinIncrementCeiling decimal.Decimal
	MinDurationDays     int
	MaxDurationDays     int
}

type UploadConfig struct {
	MaxSize      int64
	LimitPerHour int64
}
