package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Path           string `mapstructure:"PATH"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Auth struct {
		JWTSecret string `mapstructure:"JWT_SECRET"`
		Issuer    string `mapstructure:"ISSUER"`
	} `mapstructure:"AUTH"`
	Payment struct {
		BaseURL        string        `mapstructure:"BASE_URL"`
		SecretKey      string        `mapstructure:"SECRET_KEY"`
		WebhookHash    string        `mapstructure:"WEBHOOK_HASH"`
		Currency       string        `mapstructure:"CURRENCY"`
		RedirectURL    string        `mapstructure:"REDIRECT_URL"`
		Timeout        time.Duration `mapstructure:"TIMEOUT"`
		ReconcileDelay time.Duration `mapstructure:"RECONCILE_DELAY"`
	} `mapstructure:"PAYMENT"`
	// Platform holds the economics used to seed platform_settings on first read.
	Platform struct {
		PlatformFee       int64 `mapstructure:"PLATFORM_FEE"`
		MinimumDeposit    int64 `mapstructure:"MINIMUM_DEPOSIT"`
		MinimumWithdrawal int64 `mapstructure:"MINIMUM_WITHDRAWAL"`
		MaximumWithdrawal int64 `mapstructure:"MAXIMUM_WITHDRAWAL"`
		WithdrawalFee     int64 `mapstructure:"WITHDRAWAL_FEE"`
	} `mapstructure:"PLATFORM"`
	Settings struct {
		CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
	} `mapstructure:"SETTINGS"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Worker struct {
		Concurrency     int           `mapstructure:"CONCURRENCY"`
		ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	} `mapstructure:"WORKER"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "taskmarket-ledger")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")
	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "127.0.0.1")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "ledger")
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)
	v.SetDefault("DATABASE.METRICS", false)
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.PATH", "ledger.db")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("AUTH.JWT_SECRET", "")
	v.SetDefault("AUTH.ISSUER", "")
	v.SetDefault("PAYMENT.BASE_URL", "https://api.flutterwave.com")
	v.SetDefault("PAYMENT.SECRET_KEY", "")
	v.SetDefault("PAYMENT.WEBHOOK_HASH", "")
	v.SetDefault("PAYMENT.REDIRECT_URL", "")
	v.SetDefault("PAYMENT.CURRENCY", "NGN")
	v.SetDefault("PAYMENT.TIMEOUT", 10*time.Second)
	v.SetDefault("PAYMENT.RECONCILE_DELAY", 2*time.Minute)
	v.SetDefault("PLATFORM.PLATFORM_FEE", 500)
	v.SetDefault("PLATFORM.MINIMUM_DEPOSIT", 1000)
	v.SetDefault("PLATFORM.MINIMUM_WITHDRAWAL", 1000)
	v.SetDefault("PLATFORM.MAXIMUM_WITHDRAWAL", 5000000)
	v.SetDefault("PLATFORM.WITHDRAWAL_FEE", 100)
	v.SetDefault("SETTINGS.CACHE_TTL", 5*time.Minute)
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.SHUTDOWN_TIMEOUT", 20*time.Second)
}

// LoadConfig reads config.yaml (optional), .env (optional) and the process environment.
// Environment keys use "_" as the section separator, e.g. DATABASE_HOST.
func LoadConfig() (*Config, error) {
	// .env is a local convenience; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.TLS.Enable && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return nil, fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	return &cfg, nil
}
