package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/testdb"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type offerLog struct {
	mu     sync.Mutex
	offers []Offer
	taken  []uuid.UUID
}

func (l *offerLog) NotifyOffer(_ context.Context, o Offer) {
	l.mu.Lock()
	l.offers = append(l.offers, o)
	l.mu.Unlock()
}

func (l *offerLog) OfferTaken(_ context.Context, id uuid.UUID) {
	l.mu.Lock()
	l.taken = append(l.taken, id)
	l.mu.Unlock()
}

func (l *offerLog) offered(id uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.offers {
		if o.OrderID == id {
			n++
		}
	}
	return n
}

type env struct {
	t      *testing.T
	db     *gorm.DB
	app    *AppContext
	svc    *Services
	fx     *testdb.Fixtures
	clock  *fixedClock
	bus    *events.Bus
	offers *offerLog
}

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t)
	bus := events.NewBus(zap.NewNop(), nil, events.Options{Shards: 2, QueueSize: 256, MaxAttempts: 1})
	bus.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})

	app := NewAppContext(db, testdb.Config(), bus, zap.NewNop(), nil)
	clock := &fixedClock{now: testNow}
	app.Clock = clock
	offers := &offerLog{}
	app.Offers = offers
	svc := NewServices(app)
	svc.Subscribe(bus)
	return &env{t: t, db: db, app: app, svc: svc, fx: testdb.NewFixtures(t, db), clock: clock, bus: bus, offers: offers}
}

func (e *env) flush() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(e.t, e.bus.Flush(ctx))
}

func newCustomer() Principal {
	id := uuid.New()
	return Principal{Role: RoleCustomer, AccountID: id, SubjectID: id}
}

func vendorP(v *entity.Vendor) Principal {
	return Principal{Role: RoleVendor, AccountID: uuid.New(), SubjectID: v.ID}
}

func chefP(c *entity.Chef) Principal {
	return Principal{Role: RoleChef, AccountID: uuid.New(), SubjectID: c.ID}
}

func driverP(d *entity.Driver) Principal {
	return Principal{Role: RoleDriver, AccountID: uuid.New(), SubjectID: d.ID}
}

var adminP = Principal{Role: RoleAdmin, AccountID: uuid.New(), SubjectID: uuid.New()}

func productLine(v *entity.Vendor, p *entity.Product, qty int) CheckoutItem {
	return CheckoutItem{SellerID: v.ID, SellerKind: entity.SellerVendor, ItemID: p.ID, Quantity: qty}
}

func (e *env) order(id uuid.UUID) *entity.Order {
	e.t.Helper()
	var o entity.Order
	require.NoError(e.t, e.db.First(&o, "id = ?", id).Error)
	return &o
}

func (e *env) driver(id uuid.UUID) *entity.Driver {
	e.t.Helper()
	var d entity.Driver
	require.NoError(e.t, e.db.First(&d, "id = ?", id).Error)
	return &d
}

func (e *env) historyCount(orderID uuid.UUID) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(&entity.OrderStatusHistory{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

// readyDeliveryOrder places a delivery order for one product and walks it
// to ready.
func (e *env) readyDeliveryOrder() (uuid.UUID, Principal) {
	e.t.Helper()
	ctx := context.Background()
	v := e.fx.Vendor("Corner Market "+uuid.NewString()[:4], "")
	p := e.fx.Product(v, "Plantain", "10.00", 10)
	cust := newCustomer()
	addr := e.fx.Address(cust.SubjectID)
	res, err := e.svc.Orders.Checkout(ctx, cust, CheckoutRequest{
		Items:             []CheckoutItem{productLine(v, p, 1)},
		DeliveryMethod:    entity.MethodDelivery,
		DeliveryAddressID: &addr.ID,
	})
	require.NoError(e.t, err)
	id := res.Orders[0].OrderID
	_, err = e.svc.Orders.SellerTransition(ctx, vendorP(v), id, ActionAccept, "")
	require.NoError(e.t, err)
	_, err = e.svc.Orders.SellerTransition(ctx, vendorP(v), id, ActionMarkReady, "")
	require.NoError(e.t, err)
	return id, cust
}

func requireCode(t *testing.T, err error, code string) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	require.Equal(t, code, ae.Code, ae.Error())
	return ae
}

func cents(s string) money.Cents { return money.MustParse(s) }
