package services

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/configs"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// AppContext carries every shared collaborator. It is built once at startup;
// Config must not be mutated afterwards.
type AppContext struct {
	DB       *gorm.DB
	Clock    Clock
	Bus      *events.Bus
	Payments PaymentGateway
	Maps     Maps
	Coupons  CouponEvaluator
	Catalog  Catalog
	Offers   OfferNotifier
	Config   *configs.Config
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
}

// NewAppContext fills the default adapters around db and bus.
func NewAppContext(db *gorm.DB, cfg *configs.Config, bus *events.Bus, log *zap.Logger, m *metrics.Metrics) *AppContext {
	app := &AppContext{
		DB:      db,
		Clock:   SystemClock{},
		Bus:     bus,
		Maps:    NewHaversineMaps(cfg.MapsAvgSpeedKmh),
		Catalog: NewGormCatalog(db),
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Tracer:  otel.Tracer("github.com/kidoxdavid/eazyfoods-sub000/services"),
	}
	app.Payments = NewSandboxGateway(cfg.PaymentWebhookSecret, cfg.PaymentTestMode)
	app.Coupons = NewCouponService(db)
	return app
}

// publisher keeps a nil bus a nil interface.
func (app *AppContext) publisher() events.Publisher {
	if app.Bus == nil {
		return nil
	}
	return app.Bus
}

// Services is the set of engine entry points handed to the HTTP adapters.
type Services struct {
	Auth      *AuthService
	Orders    *OrderService
	Inventory *InventoryLedger
	Payments  *PaymentService
	Drivers   *DriverService
	Dispatch  *DispatchService
}

func NewServices(app *AppContext) *Services {
	inv := NewInventoryLedger(app)
	pay := NewPaymentService(app)
	drv := NewDriverService(app)
	return &Services{
		Auth:      NewAuthService(app, drv),
		Orders:    NewOrderService(app, inv, pay),
		Inventory: inv,
		Payments:  pay,
		Drivers:   drv,
		Dispatch:  NewDispatchService(app),
	}
}

// Subscribe registers the engine's bus handlers.
func (s *Services) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.NameOrderStatusChanged, s.Dispatch.OnOrderStatusChanged)
}
