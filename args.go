package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bazaar/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.Duration("server-shutdown-timeout", 15*time.Second, "")
	pflag.Duration("sse-keep-alive", 15*time.Second, "")
	pflag.String("store-driver", "postgres", "postgres or memory")

	// log config
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.String("log-format", "json", "json or text")

	// auth config
	pflag.String("auth-secret", "", "HS256 secret used to verify access tokens")
	pflag.String("auth-issuer", "", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "auto", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Bool("s3-use-path-style", false, "")
	pflag.Int64("upload-max-size", 5<<20, "")
	pflag.Int64("upload-limit-per-hour", 20, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.Duration("db-timeout", 5*time.Second, "")
	pflag.Bool("db-migrate", false, "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.Int64("redis-stream-max-len", 10000, "")

	// redis stream and lock keys
	pflag.String("redis-stream-key-for-events", "bazaar-auction-events", "")
	pflag.String("redis-stream-key-for-winners", "bazaar-winner-notices", "")
	pflag.String("redis-lock-key-for-settlement", "bazaar-settlement-lock", "")
	pflag.String("redis-lock-key-for-notification", "bazaar-notification-lock", "")

	// notification config
	pflag.String("notify-transport", "log", "redis, nats or log")
	pflag.String("nats-url", "nats://127.0.0.1:4222", "")
	pflag.String("nats-stream", "WINNERS", "")
	pflag.String("nats-subject", "auction.winners", "")

	// sweep config
	pflag.Duration("settlement-interval", time.Minute, "0 disables the settlement sweep on this instance")
	pflag.Duration("settlement-timeout", 2*time.Minute, "")
	pflag.Duration("notification-interval", time.Minute, "0 disables the notification sweep on this instance")
	pflag.Duration("notification-timeout", 2*time.Minute, "")

	// policy config
	pflag.String("policy-min-increment-floor", "0.01", "")
	pflag.String("policy-min-increment-ceiling", "1000", "")
	pflag.Int("policy-min-duration-days", 1, "")
	pflag.Int("policy-max-duration-days", 30, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BAZAAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL:       viper.GetString("server-url"),
		ShutdownTimeout: viper.GetDuration("server-shutdown-timeout"),
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		ServerConfig: api.ServerConfig{
			StoreDriver:     viper.GetString("store-driver"),
			NotifyTransport: viper.GetString("notify-transport"),
			SSEKeepAlive:    viper.GetDuration("sse-keep-alive"),
			Auth: api.AuthConfig{
				Secret: viper.GetString("auth-secret"),
				Issuer: viper.GetString("auth-issuer"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Region:          viper.GetString("s3-region"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
				UsePathStyle:    viper.GetBool("s3-use-path-style"),
			},
			Upload: api.UploadConfig{
				MaxSize:      viper.GetInt64("upload-max-size"),
				LimitPerHour: viper.GetInt64("upload-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
				Timeout:  viper.GetDuration("db-timeout"),
				Migrate:  viper.GetBool("db-migrate"),
			},
			Redis: api.RedisConfig{
				Addr:         viper.GetString("redis-addr"),
				Password:     viper.GetString("redis-password"),
				DB:           viper.GetInt("redis-db"),
				StreamMaxLen: viper.GetInt64("redis-stream-max-len"),
				StreamKeys: api.RedisStreamKeys{
					Events:  viper.GetString("redis-stream-key-for-events"),
					Winners: viper.GetString("redis-stream-key-for-winners"),
				},
				LockKeys: api.RedisLockKeys{
					Settlement:   viper.GetString("redis-lock-key-for-settlement"),
					Notification: viper.GetString("redis-lock-key-for-notification"),
				},
			},
			NATS: api.NATSConfig{
				URL:     viper.GetString("nats-url"),
				Stream:  viper.GetString("nats-stream"),
				Subject: viper.GetString("nats-subject"),
			},
			Settlement: api.SweepConfig{
				Interval: viper.GetDuration("settlement-interval"),
				Timeout:  viper.GetDuration("settlement-timeout"),
			},
			Notification: api.SweepConfig{
				Interval: viper.GetDuration("notification-interval"),
				Timeout:  viper.GetDuration("notification-timeout"),
			},
			Policy: api.PolicyConfig{
				MinIncrementFloor:   parseDecimal(viper.GetString("policy-min-increment-floor")),
				MinIncrementCeiling: parseDecimal(viper.GetString("policy-min-increment-ceiling")),
				MinDurationDays:     viper.GetInt("policy-min-duration-days"),
				MaxDurationDays:     viper.GetInt("policy-max-duration-days"),
			},
		},
	}
}

// parseDecimal 格式錯誤時回傳 0，由 Validate 回報
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type Args struct {
	ServerURL       string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
	ServerConfig    api.ServerConfig
}

// Validate 檢查必要的參數，回傳所有缺少或不合法的參數
func (args Args) Validate() error {
	var errs []error
	config := args.ServerConfig
	require := func(ok bool, format string, a ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, a...))
		}
	}

	require(args.ServerURL != "", "server-url is required")
	require(args.ShutdownTimeout > 0, "server-shutdown-timeout must be positive")
	require(config.SSEKeepAlive > 0, "sse-keep-alive must be positive")
	require(config.Auth.Secret != "", "auth-secret is required")
	require(config.DB.Timeout > 0, "db-timeout must be positive")

	switch config.StoreDriver {
	case "memory":
	case "postgres":
		require(config.DB.Host != "", "db-host is required for the postgres store")
		require(config.DB.Database != "", "db-database is required for the postgres store")
		require(config.DB.User != "", "db-user is required for the postgres store")
	default:
		errs = append(errs, fmt.Errorf("unknown store-driver %q", config.StoreDriver))
	}

	switch config.NotifyTransport {
	case "log":
	case "redis":
		require(config.Redis.Addr != "", "redis-addr is required for the redis notify transport")
	case "nats":
		require(config.NATS.URL != "", "nats-url is required for the nats notify transport")
		require(config.NATS.Stream != "" && config.NATS.Subject != "", "nats-stream and nats-subject are required for the nats notify transport")
	default:
		errs = append(errs, fmt.Errorf("unknown notify-transport %q", config.NotifyTransport))
	}

	if config.S3.Bucket != "" {
		require(config.S3.PublicBaseURL != "", "s3-public-base-url is required when s3-bucket is set")
	}
	require(config.Upload.MaxSize > 0, "upload-max-size must be positive")

	policy := config.Policy
	require(policy.MinIncrementFloor.IsPositive(), "policy-min-increment-floor must be a positive number")
	require(policy.MinIncrementCeiling.GreaterThanOrEqual(policy.MinIncrementFloor), "policy-min-increment-ceiling must not be less than the floor")
	require(policy.MinDurationDays > 0 && policy.MaxDurationDays >= policy.MinDurationDays, "policy duration days must satisfy 0 < min <= max")

	_, err := parseLevel(args.LogLevel)
	require(err == nil, "log-level: %v", err)
	require(args.LogFormat == "json" || args.LogFormat == "text", "log-format must be json or text")

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
