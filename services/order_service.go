package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/configs"
	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

type OrderService struct {
	DB         *gorm.DB
	Repo       *repository.OrderRepository
	Deliveries *repository.DeliveryRepository
	Inventory  *InventoryLedger
	Payments   *PaymentService
	Catalog    Catalog
	Coupons    CouponEvaluator
	Bus        events.Publisher
	Clock      Clock
	Config     *configs.Config
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer

	// NewNumber is swapped in tests to force collisions.
	NewNumber func(time.Time) string
}

func NewOrderService(app *AppContext, inv *InventoryLedger, pay *PaymentService) *OrderService {
	return &OrderService{
		DB:         app.DB,
		Repo:       repository.NewOrderRepository(app.DB),
		Deliveries: repository.NewDeliveryRepository(app.DB),
		Inventory:  inv,
		Payments:   pay,
		Catalog:    app.Catalog,
		Coupons:    app.Coupons,
		Bus:        app.publisher(),
		Clock:      app.Clock,
		Config:     app.Config,
		Log:        app.Log,
		Metrics:    app.Metrics,
		Tracer:     app.Tracer,
		NewNumber:  NewOrderNumber,
	}
}

// ----- DTOs from Controller -----

type CheckoutItem struct {
	SellerID   uuid.UUID         `json:"seller_id"`
	SellerKind entity.SellerKind `json:"seller_kind"`
	ItemID     uuid.UUID         `json:"product_or_cuisine_id"`
	Quantity   int               `json:"qty"`
}

type CheckoutRequest struct {
	Items             []CheckoutItem        `json:"items"`
	DeliveryMethod    entity.DeliveryMethod `json:"delivery_method"`
	DeliveryAddressID *uuid.UUID            `json:"delivery_address_id"`
	CouponCode        string                `json:"coupon_code"`
	// PaymentIntentID is the payment hint: a prepaid intent of this customer.
	PaymentIntentID *uuid.UUID `json:"payment_intent_id"`
	IdempotencyKey  string     `json:"idempotency_key"`
	Notes           string     `json:"notes"`
}

type CheckoutOrder struct {
	OrderID       uuid.UUID            `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	SellerName    string               `json:"seller_name"`
	Total         money.Cents          `json:"total"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
}

type CheckoutResult struct {
	CheckoutID uuid.UUID       `json:"checkout_id"`
	Orders     []CheckoutOrder `json:"orders"`
	// Replayed is set when an idempotency key matched an earlier checkout.
	Replayed bool `json:"replayed"`
}

// maxLineQuantity bounds one line after repeated items are merged.
const maxLineQuantity = 1000

type groupLine struct {
	item  *ItemSnapshot
	qty   int
	total money.Cents
}

type sellerGroup struct {
	seller *SellerInfo
	lines  []groupLine
	sub    money.Cents
}

func (g *sellerGroup) subtotal() money.Cents { return g.sub }

// price fills line totals and the group subtotal, failing on overflow.
func (g *sellerGroup) price() error {
	totals := make([]money.Cents, len(g.lines))
	for i := range g.lines {
		lt, err := money.Line{UnitPrice: g.lines[i].item.UnitPrice, Quantity: g.lines[i].qty}.Total()
		if err != nil {
			return pricingError(err)
		}
		g.lines[i].total = lt
		totals[i] = lt
	}
	sub, err := money.CheckedSum(totals...)
	if err != nil {
		return pricingError(err)
	}
	g.sub = sub
	return nil
}

// ----- Checkout -----

// Checkout turns a multi-seller cart into one order per seller. All orders,
// reservations, coupon usage and the payment binding commit together.
func (s *OrderService) Checkout(ctx context.Context, p Principal, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.Tracer.Start(ctx, "OrderService.Checkout")
	defer span.End()

	res, err := s.checkout(ctx, p, req)
	s.Metrics.UseCase("checkout", outcome(err))
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, s.Log).Info("checkout_rejected",
			zap.String("customer_id", p.SubjectID.String()), zap.String("outcome", outcome(err)), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("checkout_id", res.CheckoutID.String()), attribute.Int("orders", len(res.Orders)))
	return res, nil
}

func (s *OrderService) checkout(ctx context.Context, p Principal, req CheckoutRequest) (*CheckoutResult, error) {
	if p.Role != RoleCustomer {
		return nil, apperr.Forbidden("checkout is placed by a customer")
	}
	customerID := p.SubjectID
	db := s.DB.WithContext(ctx)

	if req.IdempotencyKey != "" {
		prev, err := s.Repo.FindByIdempotencyKey(db, customerID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if len(prev) > 0 {
			return replayResult(prev), nil
		}
	}

	if err := validateCheckout(req); err != nil {
		return nil, err
	}
	var address *AddressInfo
	if req.DeliveryMethod == entity.MethodDelivery {
		a, err := s.Catalog.Address(ctx, *req.DeliveryAddressID)
		if err != nil {
			return nil, unknownRef(err, "delivery_address_id", *req.DeliveryAddressID)
		}
		if a.CustomerID != customerID {
			return nil, apperr.Validation("delivery address does not belong to the customer")
		}
		address = a
	}

	groups, err := s.resolveGroups(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()

	// coupon
	var ev *CouponEvaluation
	if req.CouponCode != "" {
		creq := CouponRequest{Code: req.CouponCode, CustomerID: customerID, Now: now}
		subs := make([]money.Cents, 0, len(groups))
		for _, g := range groups {
			for _, l := range g.lines {
				creq.Lines = append(creq.Lines, CouponLine{
					SellerKind: g.seller.Kind,
					SellerID:   g.seller.ID,
					Quantity:   l.qty,
					LineTotal:  l.total,
				})
			}
			subs = append(subs, g.subtotal())
		}
		if creq.Subtotal, err = money.CheckedSum(subs...); err != nil {
			return nil, pricingError(err)
		}
		ev, err = s.Coupons.Evaluate(ctx, creq)
		if err != nil {
			return nil, err
		}
	}
	discounts := make([]money.Cents, len(groups))
	if ev != nil && ev.Discount > 0 {
		weights := make([]money.Cents, len(groups))
		for i, g := range groups {
			if ev.Applies(g.seller.Kind, g.seller.ID) {
				weights[i] = g.subtotal()
			}
		}
		discounts = money.Distribute(ev.Discount, weights)
	}

	// pricing
	breakdowns := make([]money.Breakdown, len(groups))
	totals := make([]money.Cents, len(groups))
	for i, g := range groups {
		in := money.Input{
			TaxRate:        s.Config.TaxRate,
			Discount:       discounts[i],
			CommissionRate: commissionRate(g.seller, s.Config.DefaultCommissionRate),
		}
		if req.DeliveryMethod == entity.MethodDelivery {
			in.Shipping = s.Config.ShippingFee
			if ev != nil && ev.FreeShipping && ev.Applies(g.seller.Kind, g.seller.ID) {
				in.Shipping = 0
			}
		}
		for _, l := range g.lines {
			in.Lines = append(in.Lines, money.Line{UnitPrice: l.item.UnitPrice, Quantity: l.qty})
		}
		b, err := money.Price(in)
		if err != nil {
			return nil, pricingError(err)
		}
		breakdowns[i] = b
		totals[i] = b.Total
	}
	grandTotal, err := money.CheckedSum(totals...)
	if err != nil {
		return nil, pricingError(err)
	}

	// payment hint
	paymentStatus := entity.PaymentPending
	var intent *entity.PaymentIntent
	if req.PaymentIntentID != nil {
		intent, err = s.Payments.intentForCheckout(ctx, *req.PaymentIntentID, customerID)
		if err != nil {
			return nil, err
		}
		if intent.AmountCents != grandTotal {
			return nil, apperr.Validationf("payment intent amount %s does not match checkout total %s",
				intent.AmountCents, grandTotal).With("expected", grandTotal.String())
		}
		if intent.Status == entity.IntentCaptured {
			paymentStatus = entity.PaymentPaid
		}
	}

	var reservations []Reservation
	for _, g := range groups {
		for _, l := range g.lines {
			if l.item.Stocked {
				reservations = append(reservations, Reservation{ProductID: l.item.ID, Quantity: int64(l.qty)})
			}
		}
	}

	checkoutID := uuid.New()
	orders := make([]*entity.Order, 0, len(groups))
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := s.claimCheckout(tx, checkoutID, customerID, req.IdempotencyKey, len(groups)); err != nil {
			return err
		}
		if err := s.Inventory.Reserve(tx, reservations); err != nil {
			return err
		}

		for i, g := range groups {
			b := breakdowns[i]
			o := &entity.Order{
				CheckoutID:       checkoutID,
				IdempotencyKey:   req.IdempotencyKey,
				CustomerID:       customerID,
				SellerKind:       g.seller.Kind,
				SellerName:       g.seller.Name,
				Status:           entity.OrderNew,
				DeliveryMethod:   req.DeliveryMethod,
				Subtotal:         b.Subtotal,
				Tax:              b.Tax,
				Shipping:         b.Shipping,
				Discount:         b.Discount,
				Total:            b.Total,
				GrossSales:       b.GrossSales,
				CommissionRate:   b.CommissionRate,
				CommissionAmount: b.Commission,
				NetPayout:        b.NetPayout,
				PaymentStatus:    paymentStatus,
				Notes:            req.Notes,
			}
			o.CreatedAt = now
			sellerID := g.seller.ID
			if g.seller.Kind == entity.SellerChef {
				o.ChefID = &sellerID
			} else {
				o.VendorID = &sellerID
			}
			if address != nil {
				addrID := address.ID
				o.DeliveryAddressID = &addrID
			}
			if ev != nil && ev.Applies(g.seller.Kind, g.seller.ID) {
				o.CouponCode = ev.Code
			}
			if err := s.insertWithNumber(tx, o, now); err != nil {
				return err
			}

			items := make([]entity.OrderItem, 0, len(g.lines))
			for j, l := range g.lines {
				itemID := l.item.ID
				it := entity.OrderItem{
					OrderID:   o.ID,
					Name:      l.item.Name,
					UnitPrice: l.item.UnitPrice,
					Quantity:  l.qty,
					Subtotal:  b.LineTotals[j],
				}
				if g.seller.Kind == entity.SellerChef {
					it.CuisineID = &itemID
				} else {
					it.ProductID = &itemID
				}
				items = append(items, it)
			}
			if err := s.Repo.CreateOrderItems(tx, items); err != nil {
				return err
			}
			if err := s.Repo.AppendHistory(tx, &entity.OrderStatusHistory{
				OrderID:   o.ID,
				Status:    entity.OrderNew,
				ActorID:   &customerID,
				ActorRole: string(RoleCustomer),
				At:        now,
			}); err != nil {
				return err
			}
			orders = append(orders, o)
		}

		if ev != nil {
			if err := s.Coupons.Redeem(tx, CouponRedemption{
				CouponID:   ev.CouponID,
				CustomerID: customerID,
				CheckoutID: checkoutID,
				Discount:   ev.Discount,
				At:         now,
			}); err != nil {
				return err
			}
		}
		if intent != nil {
			return s.Payments.bindCheckout(tx, intent.ID, checkoutID)
		}
		return nil
	})
	if errors.Is(err, errCheckoutReplay) {
		// a concurrent retry with the same key committed first
		prev, err := s.Repo.FindByIdempotencyKey(db, customerID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if len(prev) == 0 {
			return nil, apperr.ConcurrentUpdate("checkout")
		}
		return replayResult(prev), nil
	}
	if err != nil {
		return nil, err
	}

	s.Inventory.Commit(ctx, s.DB, reservations)
	res := &CheckoutResult{CheckoutID: checkoutID}
	evs := make([]events.Event, 0, len(orders))
	for _, o := range orders {
		res.Orders = append(res.Orders, CheckoutOrder{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			SellerName:    o.SellerName,
			Total:         o.Total,
			PaymentStatus: o.PaymentStatus,
		})
		evs = append(evs, events.OrderCreated{
			OrderID:        o.ID,
			OrderNumber:    o.Number,
			CheckoutID:     checkoutID,
			CustomerID:     customerID,
			SellerKind:     string(o.SellerKind),
			SellerID:       o.SellerID(),
			DeliveryMethod: string(o.DeliveryMethod),
			Total:          o.Total,
			PaymentStatus:  string(o.PaymentStatus),
			OccurredAt:     now,
		})
	}
	s.publish(ctx, evs...)

	logging.FromContext(ctx, s.Log).Info("checkout_created",
		zap.String("checkout_id", checkoutID.String()),
		zap.String("customer_id", customerID.String()),
		zap.Int("orders", len(orders)),
		zap.String("total", grandTotal.String()))
	return res, nil
}

func validateCheckout(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return apperr.Validation("items is required")
	}
	if !req.DeliveryMethod.Valid() {
		return apperr.Validationf("delivery_method must be pickup or delivery, got %q", req.DeliveryMethod)
	}
	if req.DeliveryMethod == entity.MethodDelivery && (req.DeliveryAddressID == nil || *req.DeliveryAddressID == uuid.Nil) {
		return apperr.Validation("delivery_address_id is required for delivery")
	}
	for i, it := range req.Items {
		switch {
		case !it.SellerKind.Valid():
			return apperr.Validationf("items[%d]: seller_kind must be vendor or chef", i)
		case it.SellerID == uuid.Nil:
			return apperr.Validationf("items[%d]: seller_id is required", i)
		case it.ItemID == uuid.Nil:
			return apperr.Validationf("items[%d]: product_or_cuisine_id is required", i)
		case it.Quantity < 1:
			return apperr.Validationf("items[%d]: qty must be at least 1", i)
		case it.Quantity > maxLineQuantity:
			return apperr.Validationf("items[%d]: qty must be at most %d", i, maxLineQuantity)
		}
	}
	return nil
}

// resolveGroups groups items per (seller_kind, seller_id) in first-seen
// order and snapshots every item from the catalog.
func (s *OrderService) resolveGroups(ctx context.Context, items []CheckoutItem) ([]*sellerGroup, error) {
	type key struct {
		kind entity.SellerKind
		id   uuid.UUID
	}
	index := map[key]*sellerGroup{}
	var groups []*sellerGroup

	for _, it := range items {
		k := key{it.SellerKind, it.SellerID}
		g, ok := index[k]
		if !ok {
			seller, err := s.Catalog.Seller(ctx, it.SellerKind, it.SellerID)
			if err != nil {
				return nil, unknownRef(err, "seller_id", it.SellerID)
			}
			if !seller.Active {
				return nil, apperr.Validationf("%s %s is not accepting orders", it.SellerKind, seller.Name)
			}
			g = &sellerGroup{seller: seller}
			index[k] = g
			groups = append(groups, g)
		}

		merged := false
		for i := range g.lines {
			if g.lines[i].item.ID == it.ItemID {
				g.lines[i].qty += it.Quantity
				if g.lines[i].qty > maxLineQuantity {
					return nil, apperr.Validationf("item %s: total qty must be at most %d", it.ItemID, maxLineQuantity)
				}
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		snap, err := s.Catalog.Item(ctx, it.SellerKind, it.ItemID)
		if err != nil {
			return nil, unknownRef(err, "product_or_cuisine_id", it.ItemID)
		}
		if snap.SellerID != it.SellerID {
			return nil, apperr.Validationf("item %s is not sold by %s %s", it.ItemID, it.SellerKind, it.SellerID)
		}
		if !snap.Available {
			return nil, apperr.Domain(apperr.CodeOutOfStock, snap.Name+" is not available").
				With("product_id", snap.ID.String()).With("available", 0)
		}
		g.lines = append(g.lines, groupLine{item: snap, qty: it.Quantity})
	}
	for _, g := range groups {
		if err := g.price(); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// unknownRef reports an id in the request that the catalog does not know.
func unknownRef(err error, field string, id uuid.UUID) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.Validationf("%s %s does not exist", field, id).With("field", field)
	}
	return err
}

var errCheckoutReplay = errors.New("checkout: idempotency key already used")

// claimCheckout inserts the checkout row. The unique key index turns a
// concurrent retry into errCheckoutReplay.
func (s *OrderService) claimCheckout(tx *gorm.DB, id, customerID uuid.UUID, key string, orders int) error {
	c := &entity.Checkout{CustomerID: customerID, OrderCount: orders}
	c.ID = id
	if key != "" {
		c.IdempotencyKey = &key
	}
	err := s.Repo.CreateCheckout(tx, c)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errCheckoutReplay
	}
	return err
}

// insertWithNumber retries number generation inside a savepoint so a
// collision does not abort the checkout transaction.
func (s *OrderService) insertWithNumber(tx *gorm.DB, o *entity.Order, now time.Time) error {
	for attempt := 1; ; attempt++ {
		o.Number = s.NewNumber(now)
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.Repo.CreateOrder(sp, o)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		s.Log.Warn("order_number_collision", zap.String("number", o.Number), zap.Int("attempt", attempt))
		if attempt >= maxOrderNumberAttempts {
			return apperr.Conflict(apperr.CodeOrderNumber, "could not allocate a unique order number")
		}
	}
}

func replayResult(prev []entity.Order) *CheckoutResult {
	res := &CheckoutResult{CheckoutID: prev[0].CheckoutID, Replayed: true}
	for _, o := range prev {
		res.Orders = append(res.Orders, CheckoutOrder{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			SellerName:    o.SellerName,
			Total:         o.Total,
			PaymentStatus: o.PaymentStatus,
		})
	}
	return res
}

func pricingError(err error) error {
	var pe *money.PricingError
	if errors.As(err, &pe) {
		return apperr.Wrap(apperr.KindValidation, apperr.CodePricing, pe.Error(), err).With("reason", pe.Kind)
	}
	return err
}

// publish hands events to the bus after commit. A full or closed bus is
// logged; the committed state stands.
func (s *OrderService) publish(ctx context.Context, evs ...events.Event) {
	publishAll(ctx, s.Bus, s.Log, evs...)
}

// publishAll detaches from the caller's cancellation: a client that hangs
// up after the commit must not lose the events of that commit.
func publishAll(ctx context.Context, bus events.Publisher, log *zap.Logger, evs ...events.Event) {
	if bus == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range evs {
		if err := bus.Publish(ctx, e); err != nil {
			logging.FromContext(ctx, log).Warn("event_not_published",
				zap.String("event", e.EventName()), zap.String("key", e.EventKey()), zap.Error(err))
		}
	}
}

// ----- Queries -----

type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NormalizePage clamps skip/limit to the API bounds.
func NormalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return skip, limit
}

type OrderQuery struct {
	Status         entity.OrderStatus
	DeliveryMethod entity.DeliveryMethod
	From           *time.Time
	To             *time.Time
	Skip           int
	Limit          int
}

// ListOrders scopes the listing to what the principal may see.
func (s *OrderService) ListOrders(ctx context.Context, p Principal, q OrderQuery) (*Page[entity.Order], error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.Validationf("unknown status %q", q.Status)
	}
	if q.DeliveryMethod != "" && !q.DeliveryMethod.Valid() {
		return nil, apperr.Validationf("unknown delivery_method %q", q.DeliveryMethod)
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, apperr.Validation("from must be before to")
	}

	f := repository.OrderFilter{Status: q.Status, DeliveryMethod: q.DeliveryMethod, From: q.From, To: q.To}
	f.Skip, f.Limit = NormalizePage(q.Skip, q.Limit)
	subject := p.SubjectID
	switch p.Role {
	case RoleAdmin:
	case RoleCustomer:
		f.CustomerID = &subject
	case RoleVendor:
		f.VendorID = &subject
	case RoleChef:
		f.ChefID = &subject
	case RoleDriver:
		f.DriverID = &subject
	default:
		return nil, apperr.Forbidden("role not permitted")
	}

	items, total, err := s.Repo.ListOrders(s.DB.WithContext(ctx), f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Order{}
	}
	return &Page[entity.Order]{Items: items, Total: total, Skip: f.Skip, Limit: f.Limit}, nil
}

type OrderDetail struct {
	entity.Order
	Delivery *entity.Delivery `json:"delivery,omitempty"`
}

// GetOrderDetail returns the order with items, history and delivery.
func (s *OrderService) GetOrderDetail(ctx context.Context, p Principal, orderID uuid.UUID) (*OrderDetail, error) {
	db := s.DB.WithContext(ctx)
	o, err := s.Repo.GetOrderDetail(db, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if !p.CanView(o) {
		return nil, apperr.Forbidden("order is not visible to this account")
	}
	out := &OrderDetail{Order: *o}
	d, err := s.Deliveries.GetByOrder(db, orderID)
	switch {
	case err == nil:
		out.Delivery = d
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return out, nil
}

// commissionRate falls back to the platform default when the seller has
// no negotiated rate.
func commissionRate(seller *SellerInfo, fallback decimal.Decimal) decimal.Decimal {
	if seller != nil && seller.CommissionRate != nil {
		return *seller.CommissionRate
	}
	return fallback
}
