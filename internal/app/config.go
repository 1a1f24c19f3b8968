package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERDESK_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERDESK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ORDERDESK_API_KEY_PEPPER)" flag:"api-key-pepper"`
	DefaultStore string `default:"siddhi" usage:"Store slug used by menu and admin routes without ?store=" flag:"default-store"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Pricing      PricingConfig
	Notify       NotifyConfig
	OrderNumber  OrderNumberConfig
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS     float64       `default:"10" usage:"Sustained requests per second per client"`
	Burst   int           `default:"20" usage:"Requests a client may make at once"`
	IdleTTL time.Duration `default:"10m" usage:"Forget clients idle for this long"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// PricingConfig controls order totals.
type PricingConfig struct {
	TaxRate              string `default:"0.05" usage:"Tax rate applied to the subtotal"`
	ClampDiscount        bool   `default:"false" usage:"Cap discounts so totals never go negative"`
	DefaultEstimatedTime int    `default:"30" usage:"Preparation estimate for new orders, in minutes"`
}

// NotifyConfig controls event fan-out.
type NotifyConfig struct {
	AMQPURL     string        `usage:"RabbitMQ URL; empty disables the AMQP sink" flag:"amqp-url"`
	Exchange    string        `default:"orderdesk.events" usage:"Topic exchange for order events"`
	BufferSize  int           `default:"256" usage:"Queued events before new ones are dropped"`
	SendTimeout time.Duration `default:"5s" usage:"Per-sink delivery timeout"`
}

// OrderNumberConfig controls order number generation.
type OrderNumberConfig struct {
	NodeID int64 `default:"-1" usage:"Snowflake node id of this replica, -1 picks one at random"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERDESK",
		Files:     []string{"config.yaml", "/etc/orderdesk/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDERDESK_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Pricing.OrderConfig(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the ORDERDESK_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// OrderConfig converts the pricing section into order service policy.
func (c PricingConfig) OrderConfig() (order.Config, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return order.Config{}, errors.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	return order.Config{
		Pricing: order.Pricing{
			TaxRate:       rate,
			ClampDiscount: c.ClampDiscount,
		},
		DefaultEstimatedTime: c.DefaultEstimatedTime,
	}, nil
}
