package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
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

// Offer is a ready delivery order waiting for a driver.
type Offer struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	SellerKind     entity.SellerKind `json:"seller_kind"`
	SellerName     string            `json:"seller_name"`
	Pickup         *LatLng           `json:"pickup,omitempty"`
	Dropoff        *LatLng           `json:"dropoff,omitempty"`
	DistanceKm     float64           `json:"distance_km"`
	DeliveryFee    money.Cents       `json:"delivery_fee"`
	DriverEarnings money.Cents       `json:"driver_earnings"`
	ReadyAt        *time.Time        `json:"ready_at,omitempty"`

	// advisory only, set when a radius is configured and the driver's
	// position is known
	DistanceToPickupKm *float64 `json:"distance_to_pickup_km,omitempty"`
	WithinRadius       *bool    `json:"within_radius,omitempty"`
}

// OfferNotifier pushes offer-pool changes to connected drivers.
type OfferNotifier interface {
	NotifyOffer(ctx context.Context, o Offer)
	OfferTaken(ctx context.Context, orderID uuid.UUID)
}

type DispatchService struct {
	DB         *gorm.DB
	Orders     *repository.OrderRepository
	Deliveries *repository.DeliveryRepository
	Drivers    *repository.DriverRepository
	Catalog    Catalog
	Maps       Maps
	Offers     OfferNotifier
	Bus        events.Publisher
	Clock      Clock
	Config     *configs.Config
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
}

func NewDispatchService(app *AppContext) *DispatchService {
	return &DispatchService{
		DB:         app.DB,
		Orders:     repository.NewOrderRepository(app.DB),
		Deliveries: repository.NewDeliveryRepository(app.DB),
		Drivers:    repository.NewDriverRepository(app.DB),
		Catalog:    app.Catalog,
		Maps:       app.Maps,
		Offers:     app.Offers,
		Bus:        app.publisher(),
		Clock:      app.Clock,
		Config:     app.Config,
		Log:        app.Log,
		Metrics:    app.Metrics,
		Tracer:     app.Tracer,
	}
}

// ----- Offer pool -----

// OnOrderStatusChanged is the bus subscription that puts ready delivery
// orders in front of drivers. Replays only re-send the notification.
func (s *DispatchService) OnOrderStatusChanged(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.OrderStatusChanged)
	if !ok {
		return nil
	}
	if ev.To != string(entity.OrderReady) || ev.DeliveryMethod != string(entity.MethodDelivery) {
		return nil
	}
	return s.reoffer(ctx, ev.OrderID)
}

func (s *DispatchService) reoffer(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.Orders.GetOrder(s.DB.WithContext(ctx), orderID)
	if err != nil {
		return notFoundOr(err, "order")
	}
	if o.Status != entity.OrderReady || o.DriverID != nil {
		return nil
	}
	offer := s.offerFor(ctx, o)
	s.Metrics.OfferPooled()
	if s.Offers != nil {
		s.Offers.NotifyOffer(ctx, offer)
	}
	logging.FromContext(ctx, s.Log).Info("offer_pooled", zap.String("order_id", o.ID.String()))
	return nil
}

func (s *DispatchService) offerFor(ctx context.Context, o *entity.Order) Offer {
	offer := Offer{
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		SellerKind:     o.SellerKind,
		SellerName:     o.SellerName,
		DeliveryFee:    o.Shipping,
		DriverEarnings: money.Share(o.Shipping, s.Config.DriverEarningsShare),
		ReadyAt:        o.ReadyAt,
	}
	offer.Pickup, offer.Dropoff = s.endpoints(ctx, o)
	if offer.Pickup != nil && offer.Dropoff != nil {
		offer.DistanceKm = roundKm(HaversineKm(*offer.Pickup, *offer.Dropoff))
	}
	return offer
}

// endpoints resolves the seller and customer coordinates; either may be
// unknown.
func (s *DispatchService) endpoints(ctx context.Context, o *entity.Order) (pickup, dropoff *LatLng) {
	log := logging.FromContext(ctx, s.Log)
	if seller, err := s.Catalog.Seller(ctx, o.SellerKind, o.SellerID()); err == nil {
		pickup = seller.Location
	} else {
		log.Warn("pickup_location_unknown", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
	if o.DeliveryAddressID != nil {
		if addr, err := s.Catalog.Address(ctx, *o.DeliveryAddressID); err == nil {
			dropoff = addr.Location
		} else {
			log.Warn("dropoff_location_unknown", zap.String("order_id", o.ID.String()), zap.Error(err))
		}
	}
	return pickup, dropoff
}

// ListAvailable is the offer pool as seen by one driver.
func (s *DispatchService) ListAvailable(ctx context.Context, p Principal, skip, limit int) (*Page[Offer], error) {
	db := s.DB.WithContext(ctx)
	var driver *entity.Driver
	switch p.Role {
	case RoleAdmin:
	case RoleDriver:
		d, err := s.Drivers.GetByID(db, p.SubjectID)
		if err != nil {
			return nil, notFoundOr(err, "driver")
		}
		if err := eligible(d); err != nil {
			return nil, err
		}
		driver = d
	default:
		return nil, apperr.Forbidden("driver only")
	}

	skip, limit = NormalizePage(skip, limit)
	orders, total, err := s.Orders.ListOfferPool(db, skip, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Offer, 0, len(orders))
	for i := range orders {
		offer := s.offerFor(ctx, &orders[i])
		if driver != nil && s.Config.DeliveryRadiusKm > 0 && offer.Pickup != nil &&
			driver.CurrentLat != nil && driver.CurrentLng != nil {
			km := roundKm(HaversineKm(LatLng{Lat: *driver.CurrentLat, Lng: *driver.CurrentLng}, *offer.Pickup))
			within := km <= s.Config.DeliveryRadiusKm
			offer.DistanceToPickupKm = &km
			offer.WithinRadius = &within
		}
		items = append(items, offer)
	}
	return &Page[Offer]{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

func eligible(d *entity.Driver) error {
	switch {
	case !d.IsActive:
		return apperr.DriverNotEligible("inactive")
	case d.VerificationStatus != entity.VerificationApproved:
		return apperr.DriverNotEligible("not_approved")
	case !d.IsAvailable:
		return apperr.DriverNotEligible("unavailable")
	}
	return nil
}

// ----- Accept / decline -----

// Accept assigns the order to the calling driver. Concurrent accepts are
// decided by the driver_id guard on the order and the unique index on
// deliveries.order_id; losers get AlreadyTaken.
func (s *DispatchService) Accept(ctx context.Context, p Principal, orderID uuid.UUID) (*entity.Delivery, error) {
	ctx, span := s.Tracer.Start(ctx, "DispatchService.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID.String()))

	d, err := s.accept(ctx, p, orderID)
	s.Metrics.UseCase("driver_accept", outcome(err))
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, s.Log).Info("driver_accept_rejected",
			zap.String("order_id", orderID.String()), zap.String("driver_id", p.SubjectID.String()),
			zap.String("outcome", outcome(err)))
		return nil, err
	}
	return d, nil
}

func (s *DispatchService) accept(ctx context.Context, p Principal, orderID uuid.UUID) (*entity.Delivery, error) {
	if p.Role != RoleDriver {
		return nil, apperr.Forbidden("driver only")
	}
	driverID := p.SubjectID
	db := s.DB.WithContext(ctx)

	// lookups and routing happen before the transaction
	o, err := s.Orders.GetOrder(db, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if o.DeliveryMethod != entity.MethodDelivery {
		return nil, apperr.Validation("pickup orders are not dispatched")
	}
	pickup, dropoff := s.endpoints(ctx, o)
	var route *Route
	if pickup != nil && dropoff != nil {
		route = s.route(ctx, *pickup, *dropoff)
	}

	now := s.Clock.Now()
	d := &entity.Delivery{
		OrderID:             o.ID,
		DriverID:            driverID,
		Status:              entity.DeliveryAccepted,
		EstimatedPickupAt:   now.Add(s.Config.PickupETA),
		EstimatedDeliveryAt: now.Add(s.Config.DeliveryETA),
		DeliveryFee:         o.Shipping,
		DriverEarnings:      money.Share(o.Shipping, s.Config.DriverEarningsShare),
		AcceptedAt:          now,
	}
	if pickup != nil {
		d.PickupLat, d.PickupLng = &pickup.Lat, &pickup.Lng
	}
	if dropoff != nil {
		d.DeliveryLat, d.DeliveryLng = &dropoff.Lat, &dropoff.Lng
	}
	if route != nil {
		d.DistanceKm = roundKm(route.DistanceKm)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		driver, err := s.Drivers.GetByID(tx, driverID)
		if err != nil {
			return notFoundOr(err, "driver")
		}
		if err := eligible(driver); err != nil {
			return err
		}
		busy, err := s.Deliveries.HasActiveForDriver(tx, driverID)
		if err != nil {
			return err
		}
		if busy {
			return apperr.DriverBusy()
		}

		affected, err := s.Orders.AssignDriverGuard(tx, o.ID, driverID)
		if err != nil {
			return err
		}
		if affected == 0 {
			cur, err := s.Orders.GetOrder(tx, o.ID)
			if err != nil {
				return err
			}
			if cur.DriverID != nil {
				return apperr.AlreadyTaken(o.ID.String())
			}
			return apperr.InvalidTransition(string(cur.Status), "accept")
		}
		if err := s.Deliveries.Create(tx, d); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.AlreadyTaken(o.ID.String())
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Offers != nil {
		s.Offers.OfferTaken(ctx, o.ID)
	}
	publishAll(ctx, s.Bus, s.Log, events.DeliveryCreated{
		DeliveryID:          d.ID,
		OrderID:             o.ID,
		DriverID:            driverID,
		DeliveryFee:         d.DeliveryFee,
		DriverEarnings:      d.DriverEarnings,
		EstimatedPickupAt:   d.EstimatedPickupAt,
		EstimatedDeliveryAt: d.EstimatedDeliveryAt,
		OccurredAt:          now,
	})
	logging.FromContext(ctx, s.Log).Info("delivery_accepted",
		zap.String("order_id", o.ID.String()),
		zap.String("driver_id", driverID.String()),
		zap.String("delivery_id", d.ID.String()),
		zap.String("driver_earnings", d.DriverEarnings.String()))
	return d, nil
}

// Decline leaves the order in the pool; it is recorded for the driver only.
func (s *DispatchService) Decline(ctx context.Context, p Principal, orderID uuid.UUID) error {
	if p.Role != RoleDriver {
		return apperr.Forbidden("driver only")
	}
	if _, err := s.Orders.GetOrder(s.DB.WithContext(ctx), orderID); err != nil {
		return notFoundOr(err, "order")
	}
	logging.FromContext(ctx, s.Log).Info("offer_declined",
		zap.String("order_id", orderID.String()), zap.String("driver_id", p.SubjectID.String()))
	return nil
}

// route asks the maps port for a leg; failures only cost the estimate.
func (s *DispatchService) route(ctx context.Context, from, to LatLng) *Route {
	var r Route
	err := callUpstream(ctx, s.Config.MapsTimeout, "maps", func(ctx context.Context) error {
		var err error
		r, err = s.Maps.Route(ctx, from, to)
		return err
	})
	if err != nil {
		logging.FromContext(ctx, s.Log).Warn("maps_route_failed", zap.Error(err))
		return nil
	}
	return &r
}

// ----- Driver progress -----

type DeliveryStatusUpdate struct {
	Status entity.DeliveryStatus `json:"status"`
	Lat    *float64              `json:"lat"`
	Lng    *float64              `json:"lng"`
	Notes  string                `json:"notes"`
}

var deliveryStamps = map[entity.DeliveryStatus]string{
	entity.DeliveryPickedUp:  "picked_up_at",
	entity.DeliveryInTransit: "in_transit_at",
	entity.DeliveryDelivered: "delivered_at",
}

var deliveryMoves = map[entity.DeliveryStatus][]entity.DeliveryStatus{
	entity.DeliveryAccepted:  {entity.DeliveryPickedUp},
	entity.DeliveryPickedUp:  {entity.DeliveryInTransit, entity.DeliveryDelivered},
	entity.DeliveryInTransit: {entity.DeliveryDelivered},
}

func canMove(from, to entity.DeliveryStatus) bool {
	for _, s := range deliveryMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus advances the driver's delivery and mirrors picked_up and
// delivered onto the order. Cancel is only possible before pickup and
// returns the order to the pool.
func (s *DispatchService) UpdateStatus(ctx context.Context, p Principal, deliveryID uuid.UUID, in DeliveryStatusUpdate) (*entity.Delivery, error) {
	ctx, span := s.Tracer.Start(ctx, "DispatchService.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("delivery_id", deliveryID.String()), attribute.String("status", string(in.Status)))

	d, err := s.updateStatus(ctx, p, deliveryID, in)
	s.Metrics.UseCase("delivery_"+string(in.Status), outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return d, nil
}

func (s *DispatchService) updateStatus(ctx context.Context, p Principal, deliveryID uuid.UUID, in DeliveryStatusUpdate) (*entity.Delivery, error) {
	if err := requireRole(p, RoleDriver); err != nil {
		return nil, err
	}
	if !in.Status.Valid() || in.Status == entity.DeliveryAccepted {
		return nil, apperr.Validationf("status must be one of picked_up, in_transit, delivered, cancelled; got %q", in.Status)
	}
	at, err := optionalPoint(in.Lat, in.Lng)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	var out *entity.Delivery
	var evs []events.Event
	reoffer := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.Deliveries.Get(tx, deliveryID)
		if err != nil {
			return notFoundOr(err, "delivery")
		}
		if !p.IsAdmin() && d.DriverID != p.SubjectID {
			return apperr.Forbidden("delivery belongs to another driver")
		}
		current := d.Status
		if current == in.Status {
			out = d
			return nil
		}

		if in.Status == entity.DeliveryCancelled {
			if current != entity.DeliveryAccepted {
				return apperr.InvalidTransition(string(current), "cancel")
			}
			if err := s.driverCancel(tx, d); err != nil {
				return err
			}
			d.Status = entity.DeliveryCancelled
			out = d
			reoffer = true
			evs = append(evs, deliveryChanged(d, current, at, now))
			return nil
		}

		if !canMove(current, in.Status) {
			return apperr.InvalidTransition(string(current), "mark "+string(in.Status))
		}
		updates := map[string]any{deliveryStamps[in.Status]: now}
		if at != nil {
			updates["current_lat"] = at.Lat
			updates["current_lng"] = at.Lng
			updates["last_location_at"] = now
		}
		if in.Notes != "" {
			updates["notes"] = in.Notes
		}
		affected, err := s.Deliveries.UpdateStatusGuard(tx, d.ID, current, in.Status, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.ConcurrentUpdate("delivery")
		}
		d.Status = in.Status
		evs = append(evs, deliveryChanged(d, current, at, now))

		switch in.Status {
		case entity.DeliveryPickedUp:
			ev, err := s.moveOrder(tx, d, entity.OrderReady, entity.OrderPickedUp, "picked_up_at", now)
			if err != nil {
				return err
			}
			evs = append(evs, ev)
		case entity.DeliveryDelivered:
			ev, err := s.moveOrder(tx, d, entity.OrderPickedUp, entity.OrderDelivered, "delivered_at", now)
			if err != nil {
				return err
			}
			evs = append(evs, ev)
			if err := s.Drivers.RecordCompleted(tx, d.DriverID, d.DriverEarnings); err != nil {
				return err
			}
		}
		out, err = s.Deliveries.Get(tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Bus, s.Log, evs...)
	if reoffer {
		if err := s.reoffer(ctx, out.OrderID); err != nil {
			logging.FromContext(ctx, s.Log).Warn("reoffer_failed", zap.String("order_id", out.OrderID.String()), zap.Error(err))
		}
	}
	logging.FromContext(ctx, s.Log).Info("delivery_status",
		zap.String("delivery_id", out.ID.String()),
		zap.String("order_id", out.OrderID.String()),
		zap.String("status", string(out.Status)))
	return out, nil
}

// driverCancel returns a pre-pickup order to the offer pool.
func (s *DispatchService) driverCancel(tx *gorm.DB, d *entity.Delivery) error {
	affected, err := s.Deliveries.DeleteAccepted(tx, d.ID, d.DriverID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ConcurrentUpdate("delivery")
	}
	if _, err := s.Orders.ClearDriverGuard(tx, d.OrderID, d.DriverID); err != nil {
		return err
	}
	return s.Drivers.RecordCancelled(tx, d.DriverID)
}

func (s *DispatchService) moveOrder(tx *gorm.DB, d *entity.Delivery, from, to entity.OrderStatus, stamp string, now time.Time) (events.Event, error) {
	affected, err := s.Orders.UpdateStatusGuard(tx, d.OrderID, from, to, map[string]any{stamp: now})
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		o, err := s.Orders.GetOrder(tx, d.OrderID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidTransition(string(o.Status), "mark "+string(to))
	}
	driverID := d.DriverID
	if err := s.Orders.AppendHistory(tx, &entity.OrderStatusHistory{
		OrderID:   d.OrderID,
		Status:    to,
		ActorID:   &driverID,
		ActorRole: string(RoleDriver),
		At:        now,
	}); err != nil {
		return nil, err
	}
	o, err := s.Orders.GetOrder(tx, d.OrderID)
	if err != nil {
		return nil, err
	}
	return statusChanged(o, from, Principal{Role: RoleDriver, SubjectID: driverID}, "", now), nil
}

func deliveryChanged(d *entity.Delivery, from entity.DeliveryStatus, at *LatLng, now time.Time) events.DeliveryStatusChanged {
	ev := events.DeliveryStatusChanged{
		DeliveryID: d.ID,
		OrderID:    d.OrderID,
		DriverID:   d.DriverID,
		From:       string(from),
		To:         string(d.Status),
		OccurredAt: now,
	}
	if at != nil {
		lat, lng := at.Lat, at.Lng
		ev.Lat, ev.Lng = &lat, &lng
	}
	return ev
}

func optionalPoint(lat, lng *float64) (*LatLng, error) {
	if lat == nil && lng == nil {
		return nil, nil
	}
	if lat == nil || lng == nil {
		return nil, apperr.Validation("lat and lng must be sent together")
	}
	p := LatLng{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return nil, apperr.Validation("lat/lng out of range")
	}
	return &p, nil
}

// ----- Location -----

// UpdateLocation records the driver's position on an active delivery and
// re-estimates the next ETA. A maps failure keeps the previous estimate.
func (s *DispatchService) UpdateLocation(ctx context.Context, p Principal, deliveryID uuid.UUID, at LatLng) (*entity.Delivery, error) {
	if p.Role != RoleDriver {
		return nil, apperr.Forbidden("driver only")
	}
	if !at.Valid() {
		return nil, apperr.Validation("lat/lng out of range")
	}
	db := s.DB.WithContext(ctx)
	d, err := s.Deliveries.Get(db, deliveryID)
	if err != nil {
		return nil, notFoundOr(err, "delivery")
	}
	if d.DriverID != p.SubjectID {
		return nil, apperr.Forbidden("delivery belongs to another driver")
	}
	if d.Status.Terminal() {
		return nil, apperr.InvalidTransition(string(d.Status), "update_location")
	}

	now := s.Clock.Now()
	updates := map[string]any{"current_lat": at.Lat, "current_lng": at.Lng, "last_location_at": now}
	ev := events.DeliveryLocationUpdated{
		DeliveryID: d.ID, OrderID: d.OrderID, DriverID: d.DriverID, Lat: at.Lat, Lng: at.Lng, OccurredAt: now,
	}
	if d.Status == entity.DeliveryAccepted {
		if target := latLng(d.PickupLat, d.PickupLng); target != nil {
			if r := s.route(ctx, at, *target); r != nil {
				eta := now.Add(r.Duration)
				updates["estimated_pickup_at"] = eta
				ev.EstimatedPickupAt = &eta
			}
		}
	} else if target := latLng(d.DeliveryLat, d.DeliveryLng); target != nil {
		if r := s.route(ctx, at, *target); r != nil {
			eta := now.Add(r.Duration)
			updates["estimated_delivery_at"] = eta
			ev.EstimatedDeliveryAt = &eta
		}
	}

	var out *entity.Delivery
	err = db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.Deliveries.UpdateLocationGuard(tx, d.ID, d.DriverID, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			cur, err := s.Deliveries.Get(tx, d.ID)
			if err != nil {
				return notFoundOr(err, "delivery")
			}
			return apperr.InvalidTransition(string(cur.Status), "update_location")
		}
		if err := s.Drivers.UpdateLocation(tx, d.DriverID, at.Lat, at.Lng, now); err != nil {
			return err
		}
		out, err = s.Deliveries.Get(tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, s.Bus, s.Log, ev)
	return out, nil
}

// ----- Rating -----

type RatingRequest struct {
	Rating   int     `json:"rating"`
	Feedback *string `json:"feedback"`
}

// Rate stores the customer's single rating and refreshes the driver mean.
func (s *DispatchService) Rate(ctx context.Context, p Principal, deliveryID uuid.UUID, in RatingRequest) (*entity.Delivery, error) {
	if p.Role != RoleCustomer {
		return nil, apperr.Forbidden("customer only")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}

	var out *entity.Delivery
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.Deliveries.Get(tx, deliveryID)
		if err != nil {
			return notFoundOr(err, "delivery")
		}
		o, err := s.Orders.GetOrder(tx, d.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if o.CustomerID != p.SubjectID {
			return apperr.Forbidden("delivery belongs to another customer")
		}
		if d.CustomerRating != nil {
			return apperr.AlreadyRated()
		}
		if d.Status != entity.DeliveryDelivered {
			return apperr.InvalidTransition(string(d.Status), "rate")
		}

		updates := map[string]any{"customer_rating": in.Rating, "rated_at": s.Clock.Now()}
		if in.Feedback != nil {
			updates["customer_feedback"] = *in.Feedback
		}
		affected, err := s.Deliveries.SetRatingGuard(tx, d.ID, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.AlreadyRated()
		}
		stats, err := s.Deliveries.RatingStatsForDriver(tx, d.DriverID)
		if err != nil {
			return err
		}
		if err := s.Drivers.SetRating(tx, d.DriverID, stats.Average, stats.Count); err != nil {
			return err
		}
		out, err = s.Deliveries.Get(tx, d.ID)
		return err
	})
	s.Metrics.UseCase("rate_delivery", outcome(err))
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("delivery_rated",
		zap.String("delivery_id", out.ID.String()), zap.Int("rating", in.Rating))
	return out, nil
}

// ListMine pages over the calling driver's deliveries.
func (s *DispatchService) ListMine(ctx context.Context, p Principal, status entity.DeliveryStatus, skip, limit int) (*Page[entity.Delivery], error) {
	if p.Role != RoleDriver {
		return nil, apperr.Forbidden("driver only")
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Validationf("unknown delivery status %q", status)
	}
	skip, limit = NormalizePage(skip, limit)
	items, total, err := s.Deliveries.ListForDriver(s.DB.WithContext(ctx), p.SubjectID, status, skip, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Delivery{}
	}
	return &Page[entity.Delivery]{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}
