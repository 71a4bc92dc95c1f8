package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
)

func TestReadyDeliveryOrderIsOffered(t *testing.T) {
	e := newEnv(t)
	id, _ := e.readyDeliveryOrder()
	e.flush()
	assert.Equal(t, 1, e.offers.offered(id))

	d := e.fx.Driver("viewer")
	page, err := e.svc.Dispatch.ListAvailable(context.Background(), driverP(d), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	offer := page.Items[0]
	assert.Equal(t, id, offer.OrderID)
	assert.Equal(t, cents("5.00"), offer.DeliveryFee)
	assert.Equal(t, cents("4.00"), offer.DriverEarnings)
	require.NotNil(t, offer.Pickup)
	require.NotNil(t, offer.Dropoff)
	assert.Greater(t, offer.DistanceKm, 0.0)
	assert.Nil(t, offer.WithinRadius)
}

func TestOfferPoolEligibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.readyDeliveryOrder()

	offline := e.fx.Driver("offline")
	require.NoError(t, e.db.Model(offline).Update("is_available", false).Error)
	_, err := e.svc.Dispatch.ListAvailable(ctx, driverP(offline), 0, 0)
	ae := requireCode(t, err, apperr.CodeDriverNotEligible)
	assert.Equal(t, "unavailable", ae.Details["reason"])

	pending := e.fx.Driver("pending")
	require.NoError(t, e.db.Model(pending).Update("verification_status", entity.VerificationPending).Error)
	_, err = e.svc.Dispatch.ListAvailable(ctx, driverP(pending), 0, 0)
	ae = requireCode(t, err, apperr.CodeDriverNotEligible)
	assert.Equal(t, "not_approved", ae.Details["reason"])

	_, err = e.svc.Dispatch.ListAvailable(ctx, newCustomer(), 0, 0)
	requireCode(t, err, apperr.CodeForbidden)

	page, err := e.svc.Dispatch.ListAvailable(ctx, adminP, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestOfferRadiusIsAdvisory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.svc.Dispatch.Config.DeliveryRadiusKm = 1
	e.readyDeliveryOrder()

	near := e.fx.Driver("near")
	_, err := e.svc.Drivers.UpdateLocation(ctx, driverP(near), LatLng{Lat: 43.6532, Lng: -79.3832})
	require.NoError(t, err)
	far := e.fx.Driver("far")
	_, err = e.svc.Drivers.UpdateLocation(ctx, driverP(far), LatLng{Lat: 45.4215, Lng: -75.6972})
	require.NoError(t, err)

	page, err := e.svc.Dispatch.ListAvailable(ctx, driverP(near), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].WithinRadius)
	assert.True(t, *page.Items[0].WithinRadius)

	page, err = e.svc.Dispatch.ListAvailable(ctx, driverP(far), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "out-of-radius offers are still listed")
	assert.False(t, *page.Items[0].WithinRadius)
}

func TestDriverFirstAcceptWins(t *testing.T) {
	e := newEnv(t)
	id, _ := e.readyDeliveryOrder()
	drivers := []*entity.Driver{e.fx.Driver("d1"), e.fx.Driver("d2")}

	var wg sync.WaitGroup
	results := make([]*entity.Delivery, len(drivers))
	errs := make([]error, len(drivers))
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d *entity.Driver) {
			defer wg.Done()
			results[i], errs[i] = e.svc.Dispatch.Accept(context.Background(), driverP(d), id)
		}(i, d)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one accept may win")
			winner = i
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrAlreadyTaken), err)
	}
	require.NotEqual(t, -1, winner)

	d := results[winner]
	assert.Equal(t, entity.DeliveryAccepted, d.Status)
	assert.Equal(t, cents("5.00"), d.DeliveryFee)
	assert.Equal(t, cents("4.00"), d.DriverEarnings)
	assert.Equal(t, testNow.Add(15*time.Minute), d.EstimatedPickupAt)
	assert.Equal(t, testNow.Add(45*time.Minute), d.EstimatedDeliveryAt)
	assert.Greater(t, d.DistanceKm, 0.0)

	o := e.order(id)
	require.NotNil(t, o.DriverID)
	assert.Equal(t, drivers[winner].ID, *o.DriverID)
	assert.Equal(t, entity.OrderReady, o.Status)

	var n int64
	require.NoError(t, e.db.Model(&entity.Delivery{}).Where("order_id = ?", id).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	page, err := e.svc.Dispatch.ListAvailable(context.Background(), adminP, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	e.offers.mu.Lock()
	assert.Contains(t, e.offers.taken, id)
	e.offers.mu.Unlock()
}

func TestAcceptRejectsOrdersNotInPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Not Ready", "")
	p := e.fx.Product(v, "Akara", "3.00", 10)
	cust := newCustomer()
	addr := e.fx.Address(cust.SubjectID)
	res, err := e.svc.Orders.Checkout(ctx, cust, CheckoutRequest{
		Items: []CheckoutItem{productLine(v, p, 1)}, DeliveryMethod: entity.MethodDelivery, DeliveryAddressID: &addr.ID})
	require.NoError(t, err)
	d := e.fx.Driver("eager")

	_, err = e.svc.Dispatch.Accept(ctx, driverP(d), res.Orders[0].OrderID)
	ae := requireCode(t, err, apperr.CodeInvalidTransition)
	assert.Equal(t, "new", ae.Details["current"])

	pickupID, _ := placePickup(t, e, v, p, 1)
	_, err = e.svc.Dispatch.Accept(ctx, driverP(d), pickupID)
	requireCode(t, err, apperr.CodeValidation)

	_, err = e.svc.Dispatch.Accept(ctx, cust, res.Orders[0].OrderID)
	requireCode(t, err, apperr.CodeForbidden)
}

// deliver runs an accepted delivery through to delivered.
func deliver(t *testing.T, e *env, d *entity.Driver, deliveryID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []entity.DeliveryStatus{entity.DeliveryPickedUp, entity.DeliveryInTransit, entity.DeliveryDelivered} {
		e.clock.Advance(5 * time.Minute)
		_, err := e.svc.Dispatch.UpdateStatus(ctx, driverP(d), deliveryID, DeliveryStatusUpdate{Status: s})
		require.NoError(t, err, s)
	}
}

func TestDeliveryHappyPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("happy")
	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)

	var moves []string
	e.bus.Subscribe(events.NameDeliveryStatusChanged, func(_ context.Context, ev events.Event) error {
		moves = append(moves, ev.(events.DeliveryStatusChanged).To)
		return nil
	})

	lat, lng := 43.65, -79.38
	got, err := e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID,
		DeliveryStatusUpdate{Status: entity.DeliveryPickedUp, Lat: &lat, Lng: &lng, Notes: "bag sealed"})
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPickedUp, got.Status)
	assert.NotNil(t, got.PickedUpAt)
	require.NotNil(t, got.CurrentLat)
	assert.Equal(t, lat, *got.CurrentLat)
	assert.Equal(t, entity.OrderPickedUp, e.order(id).Status)

	// repeating a status is a no-op
	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryPickedUp})
	require.NoError(t, err)

	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryInTransit})
	require.NoError(t, err)
	got, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryDelivered})
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryDelivered, got.Status)
	e.flush()

	o := e.order(id)
	assert.Equal(t, entity.OrderDelivered, o.Status)
	assert.NotNil(t, o.DeliveredAt)
	assert.Equal(t, int64(5), e.historyCount(id))

	drv := e.driver(d.ID)
	assert.Equal(t, int64(1), drv.CompletedDeliveries)
	assert.Equal(t, int64(1), drv.TotalDeliveries)
	assert.Equal(t, cents("4.00"), drv.TotalEarnings)
	assert.Equal(t, []string{"picked_up", "in_transit", "delivered"}, moves)

	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryInTransit})
	requireCode(t, err, apperr.CodeInvalidTransition)
}

func TestDriverCancelAfterPickupRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("late-cancel")
	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)
	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryPickedUp})
	require.NoError(t, err)

	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryCancelled})
	ae := requireCode(t, err, apperr.CodeInvalidTransition)
	assert.Equal(t, "picked_up", ae.Details["current"])

	var got entity.Delivery
	require.NoError(t, e.db.First(&got, "id = ?", delivery.ID).Error)
	assert.Equal(t, entity.DeliveryPickedUp, got.Status)
	assert.Equal(t, entity.OrderPickedUp, e.order(id).Status)
}

func TestDriverCancelBeforePickupReturnsToPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	e.flush()
	d := e.fx.Driver("flaky")
	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)

	got, err := e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryCancelled})
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryCancelled, got.Status)

	var n int64
	require.NoError(t, e.db.Model(&entity.Delivery{}).Where("order_id = ?", id).Count(&n).Error)
	assert.Zero(t, n)
	o := e.order(id)
	assert.Nil(t, o.DriverID)
	assert.Equal(t, entity.OrderReady, o.Status)
	assert.Equal(t, int64(1), e.driver(d.ID).CancelledDeliveries)
	assert.Equal(t, 2, e.offers.offered(id))

	// another driver can take it now
	other := e.fx.Driver("reliable")
	_, err = e.svc.Dispatch.Accept(ctx, driverP(other), id)
	require.NoError(t, err)
}

func TestDeliveryBelongsToItsDriver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("owner")
	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)
	stranger := e.fx.Driver("stranger")

	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(stranger), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryPickedUp})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = e.svc.Dispatch.UpdateLocation(ctx, driverP(stranger), delivery.ID, LatLng{Lat: 43.6, Lng: -79.4})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: "teleported"})
	requireCode(t, err, apperr.CodeValidation)
	lat := 43.6
	_, err = e.svc.Dispatch.UpdateStatus(ctx, driverP(d), delivery.ID, DeliveryStatusUpdate{Status: entity.DeliveryPickedUp, Lat: &lat})
	requireCode(t, err, apperr.CodeValidation)
}

func TestBusyDriver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first, _ := e.readyDeliveryOrder()
	second, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("busy")

	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), first)
	require.NoError(t, err)
	_, err = e.svc.Dispatch.Accept(ctx, driverP(d), second)
	requireCode(t, err, apperr.CodeDriverBusy)
	assert.Nil(t, e.order(second).DriverID)

	_, err = e.svc.Drivers.SetAvailability(ctx, driverP(d), false)
	requireCode(t, err, apperr.CodeDriverBusy)

	deliver(t, e, d, delivery.ID)
	_, err = e.svc.Dispatch.Accept(ctx, driverP(d), second)
	require.NoError(t, err)
}

func TestUpdateLocationReestimates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("moving")
	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)

	var updates []events.DeliveryLocationUpdated
	e.bus.Subscribe(events.NameDeliveryLocationUpdated, func(_ context.Context, ev events.Event) error {
		updates = append(updates, ev.(events.DeliveryLocationUpdated))
		return nil
	})

	e.clock.Advance(2 * time.Minute)
	here := LatLng{Lat: 43.70, Lng: -79.42}
	got, err := e.svc.Dispatch.UpdateLocation(ctx, driverP(d), delivery.ID, here)
	require.NoError(t, err)
	pickup := LatLng{Lat: *delivery.PickupLat, Lng: *delivery.PickupLng}
	leg, err := e.app.Maps.Route(ctx, here, pickup)
	require.NoError(t, err)
	assert.WithinDuration(t, testNow.Add(2*time.Minute).Add(leg.Duration), got.EstimatedPickupAt, time.Millisecond)
	assert.WithinDuration(t, delivery.EstimatedDeliveryAt, got.EstimatedDeliveryAt, time.Millisecond)

	drv := e.driver(d.ID)
	require.NotNil(t, drv.CurrentLat)
	assert.Equal(t, here.Lat, *drv.CurrentLat)

	_, err = e.svc.Dispatch.UpdateLocation(ctx, driverP(d), delivery.ID, LatLng{Lat: 91, Lng: 0})
	requireCode(t, err, apperr.CodeValidation)

	deliver(t, e, d, delivery.ID)
	_, err = e.svc.Dispatch.UpdateLocation(ctx, driverP(d), delivery.ID, here)
	requireCode(t, err, apperr.CodeInvalidTransition)
	e.flush()
	require.Len(t, updates, 1)
	assert.NotNil(t, updates[0].EstimatedPickupAt)
}

type failingMaps struct{}

func (failingMaps) Route(context.Context, LatLng, LatLng) (Route, error) {
	return Route{}, errors.New("maps down")
}

func TestMapsOutageKeepsDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.svc.Dispatch.Maps = failingMaps{}
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("offline-maps")

	delivery, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)
	assert.Zero(t, delivery.DistanceKm)
	assert.Equal(t, testNow.Add(15*time.Minute), delivery.EstimatedPickupAt)

	got, err := e.svc.Dispatch.UpdateLocation(ctx, driverP(d), delivery.ID, LatLng{Lat: 43.7, Lng: -79.4})
	require.NoError(t, err)
	assert.WithinDuration(t, delivery.EstimatedPickupAt, got.EstimatedPickupAt, time.Millisecond)
}

func TestRating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := e.fx.Driver("rated")

	var deliveries []uuid.UUID
	var customers []Principal
	for i := 0; i < 2; i++ {
		id, cust := e.readyDeliveryOrder()
		del, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
		require.NoError(t, err)
		if i == 0 {
			_, err = e.svc.Dispatch.Rate(ctx, cust, del.ID, RatingRequest{Rating: 5})
			requireCode(t, err, apperr.CodeInvalidTransition)
		}
		deliver(t, e, d, del.ID)
		deliveries = append(deliveries, del.ID)
		customers = append(customers, cust)
	}

	feedback := "quick and friendly"
	got, err := e.svc.Dispatch.Rate(ctx, customers[0], deliveries[0], RatingRequest{Rating: 5, Feedback: &feedback})
	require.NoError(t, err)
	require.NotNil(t, got.CustomerRating)
	assert.Equal(t, 5, *got.CustomerRating)
	require.NotNil(t, got.CustomerFeedback)
	assert.Equal(t, feedback, *got.CustomerFeedback)

	_, err = e.svc.Dispatch.Rate(ctx, customers[1], deliveries[1], RatingRequest{Rating: 2})
	require.NoError(t, err)

	drv := e.driver(d.ID)
	assert.InDelta(t, 3.5, drv.AverageRating, 1e-9)
	assert.Equal(t, int64(2), drv.TotalRatings)

	_, err = e.svc.Dispatch.Rate(ctx, customers[0], deliveries[0], RatingRequest{Rating: 1})
	requireCode(t, err, apperr.CodeAlreadyRated)
	_, err = e.svc.Dispatch.Rate(ctx, customers[1], deliveries[0], RatingRequest{Rating: 3})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = e.svc.Dispatch.Rate(ctx, customers[0], deliveries[0], RatingRequest{Rating: 6})
	requireCode(t, err, apperr.CodeValidation)
	assert.InDelta(t, 3.5, e.driver(d.ID).AverageRating, 1e-9)
}

func TestListMine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := e.fx.Driver("history")
	id, _ := e.readyDeliveryOrder()
	del, err := e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)
	deliver(t, e, d, del.ID)
	id, _ = e.readyDeliveryOrder()
	_, err = e.svc.Dispatch.Accept(ctx, driverP(d), id)
	require.NoError(t, err)

	page, err := e.svc.Dispatch.ListMine(ctx, driverP(d), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = e.svc.Dispatch.ListMine(ctx, driverP(d), entity.DeliveryDelivered, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, del.ID, page.Items[0].ID)

	_, err = e.svc.Dispatch.ListMine(ctx, driverP(d), "lost", 0, 0)
	requireCode(t, err, apperr.CodeValidation)
}

func TestDeclineKeepsOffer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.readyDeliveryOrder()
	d := e.fx.Driver("picky")
	require.NoError(t, e.svc.Dispatch.Decline(ctx, driverP(d), id))
	page, err := e.svc.Dispatch.ListAvailable(ctx, driverP(d), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	requireCode(t, e.svc.Dispatch.Decline(ctx, driverP(d), uuid.New()), apperr.CodeNotFound)
}
