package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env         string            `mapstructure:"env"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	DB          DBConfig          `mapstructure:"db"`
	Payments    PaymentsConfig    `mapstructure:"payments"`
	Session     SessionConfig     `mapstructure:"session"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Log         LogConfig         `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PaymentsConfig amounts are in minor currency units (paise for INR).
type PaymentsConfig struct {
	Provider         string        `mapstructure:"provider"` // razorpay|mock
	KeyID            string        `mapstructure:"key_id"`
	KeySecret        string        `mapstructure:"key_secret"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	Currency         string        `mapstructure:"currency"`
	MaxAmount        int64         `mapstructure:"max_amount"`
	ProcessorTimeout time.Duration `mapstructure:"processor_timeout"`
	SettleTimeout    time.Duration `mapstructure:"settle_timeout"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

type IdempotencyConfig struct {
	Path string        `mapstructure:"path"` // empty disables replay
	TTL  time.Duration `mapstructure:"ttl"`
}

type ArchiveConfig struct {
	Driver   string `mapstructure:"driver"` // none|local|s3
	LocalDir string `mapstructure:"local_dir"`
	S3Region string `mapstructure:"s3_region"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// legacyEnv maps config keys to the env names used by earlier deployments.
var legacyEnv = map[string]string{
	"db.dsn":                  "DB_DSN",
	"payments.key_id":         "RAZORPAY_KEY_ID",
	"payments.key_secret":     "RAZORPAY_KEY_SECRET",
	"payments.webhook_secret": "RAZORPAY_WEBHOOK_SECRET",
	"http.addr":               "HTTP_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("payments.provider", "razorpay")
	v.SetDefault("payments.key_id", "")
	v.SetDefault("payments.key_secret", "")
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.currency", "INR")
	v.SetDefault("payments.max_amount", int64(10_000_000)) // Rs 1,00,000
	v.SetDefault("payments.processor_timeout", 10*time.Second)
	v.SetDefault("payments.settle_timeout", 15*time.Second)

	v.SetDefault("session.cookie_name", "dreamfundr_session")

	v.SetDefault("idempotency.path", "./storage/idempotency.db")
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.local_dir", "./storage/anomalies")
	v.SetDefault("archive.s3_region", "")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_prefix", "anomalies")

	v.SetDefault("log.level", "info")
}

// Load reads defaults, an optional config.yaml from the given directories
// (current directory when none) and the environment, in that order of
// precedence. A .env file is loaded first when present.
func Load(paths ...string) (Config, error) {
	// .env is optional; production uses real env vars
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		canonical := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, canonical, env); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Payments.Currency = strings.ToUpper(strings.TrimSpace(cfg.Payments.Currency))
	cfg.Payments.Provider = strings.ToLower(strings.TrimSpace(cfg.Payments.Provider))
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn (DB_DSN) is required"))
	}
	switch c.Payments.Provider {
	case "razorpay":
		if c.Payments.KeyID == "" || c.Payments.KeySecret == "" {
			errs = append(errs, errors.New("payments.key_id and payments.key_secret are required for razorpay"))
		}
		if c.Payments.WebhookSecret == "" {
			errs = append(errs, errors.New("payments.webhook_secret is required for razorpay"))
		}
	case "mock":
		if c.Payments.KeySecret == "" || c.Payments.WebhookSecret == "" {
			errs = append(errs, errors.New("mock provider still needs key_secret and webhook_secret to sign"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown payments.provider: %q", c.Payments.Provider))
	}
	if c.Payments.MaxAmount <= 0 {
		errs = append(errs, errors.New("payments.max_amount must be positive"))
	}
	if len(c.Payments.Currency) != 3 {
		errs = append(errs, fmt.Errorf("payments.currency must be an ISO 4217 code, got %q", c.Payments.Currency))
	}
	switch c.Archive.Driver {
	case "", "none", "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown archive.driver: %q", c.Archive.Driver))
	}
	return errors.Join(errs...)
}
