package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	AppEnv      string
	ServiceName string
	Port        string
	CORSOrigins []string

	DBDriver string
	DBSource string

	JWTSecret string
	JWTTTL    time.Duration

	Currency              string
	TaxRate               decimal.Decimal
	ShippingFee           money.Cents
	DefaultCommissionRate decimal.Decimal
	DriverEarningsShare   decimal.Decimal

	PickupETA        time.Duration
	DeliveryETA      time.Duration
	DeliveryRadiusKm float64
	MapsTimeout      time.Duration
	MapsAvgSpeedKmh  float64

	PaymentGateway        string
	PaymentTestMode       bool
	PaymentsSuspended     bool
	PaymentPublishableKey string
	PaymentWebhookSecret  string
	PaymentTimeout        time.Duration

	RabbitMQURL    string
	EventsExchange string

	AdminEmail    string
	AdminPassword string
}

// LoadConfig reads .env when present, then the environment. Malformed
// values are reported together so startup fails once with the full list.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "dev"),
		ServiceName: getEnv("SERVICE_NAME", "ezf-core"),
		Port:        getEnv("PORT", "8000"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBSource: getEnv("DB_SOURCE", "ezf.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    p.duration("JWT_TTL", "24h"),

		Currency:              strings.ToUpper(getEnv("CURRENCY", "CAD")),
		TaxRate:               p.decimal("TAX_RATE", "0.08"),
		ShippingFee:           p.money("SHIPPING_FEE", "5.00"),
		DefaultCommissionRate: p.decimal("DEFAULT_COMMISSION_RATE", "10.00"),
		DriverEarningsShare:   p.decimal("DRIVER_EARNINGS_SHARE", "0.80"),

		PickupETA:        p.duration("PICKUP_ETA", "15m"),
		DeliveryETA:      p.duration("DELIVERY_ETA", "45m"),
		DeliveryRadiusKm: p.float("DELIVERY_RADIUS_KM", "0"),
		MapsTimeout:      p.duration("MAPS_TIMEOUT", "10s"),
		MapsAvgSpeedKmh:  p.float("MAPS_AVG_SPEED_KMH", "30"),

		PaymentGateway:        getEnv("PAYMENT_GATEWAY", "sandbox"),
		PaymentTestMode:       p.bool("PAYMENT_TEST_MODE", "true"),
		PaymentsSuspended:     p.bool("PAYMENTS_SUSPENDED", "false"),
		PaymentPublishableKey: os.Getenv("PAYMENT_PUBLISHABLE_KEY"),
		PaymentWebhookSecret:  os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentTimeout:        p.duration("PAYMENT_TIMEOUT", "15s"),

		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		EventsExchange: getEnv("EVENTS_EXCHANGE", "ezf.events"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

var one = decimal.NewFromInt(1)

func (c *Config) Validate() error {
	var errs []error
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.DBSource == "" {
		errs = append(errs, errors.New("DB_SOURCE is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be a 3-letter code, got %q", c.Currency))
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(one) {
		errs = append(errs, fmt.Errorf("TAX_RATE must be in [0,1), got %s", c.TaxRate))
	}
	if c.ShippingFee < 0 {
		errs = append(errs, errors.New("SHIPPING_FEE must not be negative"))
	}
	if c.DefaultCommissionRate.IsNegative() || c.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("DEFAULT_COMMISSION_RATE must be in [0,100], got %s", c.DefaultCommissionRate))
	}
	if c.DriverEarningsShare.IsNegative() || c.DriverEarningsShare.GreaterThan(one) {
		errs = append(errs, fmt.Errorf("DRIVER_EARNINGS_SHARE must be in [0,1], got %s", c.DriverEarningsShare))
	}
	if c.PaymentGateway != "sandbox" {
		errs = append(errs, fmt.Errorf("unsupported PAYMENT_GATEWAY %q", c.PaymentGateway))
	}
	if !c.PaymentTestMode && c.PaymentWebhookSecret == "" {
		errs = append(errs, errors.New("PAYMENT_WEBHOOK_SECRET is required outside test mode"))
	}
	if c.MapsAvgSpeedKmh <= 0 {
		errs = append(errs, errors.New("MAPS_AVG_SPEED_KMH must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type parser struct{ errs []error }

func (p *parser) fail(key, v string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (p *parser) duration(key, def string) time.Duration {
	v := getEnv(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return d
}

func (p *parser) decimal(key, def string) decimal.Decimal {
	v := getEnv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return d
}

func (p *parser) money(key, def string) money.Cents {
	v := getEnv(key, def)
	c, err := money.Parse(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return c
}

func (p *parser) float(key, def string) float64 {
	v := getEnv(key, def)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
	}
	return f
}

func (p *parser) bool(key, def string) bool {
	v := getEnv(key, def)
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return b
}
