package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
)

func callbackBody(t *testing.T, ref, status string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"gateway_ref": ref, "status": status})
	require.NoError(t, err)
	return raw
}

func capturedCallback(t *testing.T, e *env, ref string) *CallbackOutcome {
	t.Helper()
	gw := e.app.Payments.(*SandboxGateway)
	raw := callbackBody(t, ref, "captured")
	out, err := e.svc.Payments.ValidateCallback(context.Background(), raw, gw.Sign(raw))
	require.NoError(t, err)
	return out
}

func TestCreateIntent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cust := newCustomer()

	h, err := e.svc.Payments.CreateIntent(ctx, cust, cents("12.50"), "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "sandbox", h.Gateway)
	assert.Equal(t, "CAD", h.Currency)
	assert.NotEmpty(t, h.ClientSecret)

	var pi entity.PaymentIntent
	require.NoError(t, e.db.First(&pi, "id = ?", h.IntentID).Error)
	assert.Equal(t, entity.IntentCreated, pi.Status)
	assert.Equal(t, cust.SubjectID, pi.CustomerID)

	_, err = e.svc.Payments.CreateIntent(ctx, cust, 0, "")
	requireCode(t, err, apperr.CodeValidation)
	_, err = e.svc.Payments.CreateIntent(ctx, cust, cents("1.00"), "stripe")
	requireCode(t, err, apperr.CodeValidation)
	_, err = e.svc.Payments.CreateIntent(ctx, driverP(e.fx.Driver("pay")), cents("1.00"), "")
	requireCode(t, err, apperr.CodeForbidden)
}

func TestCreateIntentWhileSuspended(t *testing.T) {
	e := newEnv(t)
	e.svc.Payments.Config.PaymentsSuspended = true
	_, err := e.svc.Payments.CreateIntent(context.Background(), newCustomer(), cents("1.00"), "")
	requireCode(t, err, apperr.CodeUpstreamUnavailable)
}

func TestCallbackRequiresValidSignature(t *testing.T) {
	e := newEnv(t)
	h, err := e.svc.Payments.CreateIntent(context.Background(), newCustomer(), cents("3.00"), "")
	require.NoError(t, err)

	raw := callbackBody(t, h.GatewayRef, "captured")
	_, err = e.svc.Payments.ValidateCallback(context.Background(), raw, "deadbeef")
	requireCode(t, err, apperr.CodeValidation)

	var pi entity.PaymentIntent
	require.NoError(t, e.db.First(&pi, "id = ?", h.IntentID).Error)
	assert.Equal(t, entity.IntentCreated, pi.Status)
}

func TestCaptureAfterCheckoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Pay Later", "")
	p := e.fx.Product(v, "Stockfish", "10.00", 5)
	c := e.fx.Chef("Split Pay")
	dish := e.fx.Cuisine(c, "Moi moi", "5.00")
	cust := newCustomer()

	// 10.80 + 5.40
	h, err := e.svc.Payments.CreateIntent(ctx, cust, cents("16.20"), "")
	require.NoError(t, err)
	res, err := e.svc.Orders.Checkout(ctx, cust, CheckoutRequest{
		Items: []CheckoutItem{
			productLine(v, p, 1),
			{SellerID: c.ID, SellerKind: entity.SellerChef, ItemID: dish.ID, Quantity: 1},
		},
		DeliveryMethod:  entity.MethodPickup,
		PaymentIntentID: &h.IntentID,
	})
	require.NoError(t, err)
	for _, o := range res.Orders {
		assert.Equal(t, entity.PaymentPending, o.PaymentStatus)
	}

	first := capturedCallback(t, e, h.GatewayRef)
	assert.True(t, first.Changed)
	assert.Equal(t, entity.IntentCaptured, first.Status)
	for _, o := range res.Orders {
		assert.Equal(t, entity.PaymentPaid, e.order(o.OrderID).PaymentStatus)
	}

	replay := capturedCallback(t, e, h.GatewayRef)
	assert.False(t, replay.Changed)
	assert.Equal(t, h.GatewayRef, replay.TransactionID)

	// a late failure never downgrades a capture
	gw := e.app.Payments.(*SandboxGateway)
	raw := callbackBody(t, h.GatewayRef, "failed")
	out, err := e.svc.Payments.ValidateCallback(ctx, raw, gw.Sign(raw))
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, entity.IntentCaptured, out.Status)
}

func TestFailedCallbackMarksOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Declined", "")
	p := e.fx.Product(v, "Crayfish", "10.00", 5)
	cust := newCustomer()

	h, err := e.svc.Payments.CreateIntent(ctx, cust, cents("10.80"), "")
	require.NoError(t, err)
	res, err := e.svc.Orders.Checkout(ctx, cust, CheckoutRequest{
		Items: []CheckoutItem{productLine(v, p, 1)}, DeliveryMethod: entity.MethodPickup, PaymentIntentID: &h.IntentID})
	require.NoError(t, err)

	gw := e.app.Payments.(*SandboxGateway)
	raw := callbackBody(t, h.GatewayRef, "declined")
	out, err := e.svc.Payments.ValidateCallback(ctx, raw, gw.Sign(raw))
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, entity.PaymentFailed, e.order(res.Orders[0].OrderID).PaymentStatus)

	// a retried payment can still capture
	out = capturedCallback(t, e, h.GatewayRef)
	assert.True(t, out.Changed)
	assert.Equal(t, entity.PaymentPaid, e.order(res.Orders[0].OrderID).PaymentStatus)
}

func TestMarkCapturedBindsUnboundIntent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Bind Late", "")
	p := e.fx.Product(v, "Ugu", "10.00", 5)
	cust := newCustomer()

	res, err := e.svc.Orders.Checkout(ctx, cust, CheckoutRequest{
		Items: []CheckoutItem{productLine(v, p, 1)}, DeliveryMethod: entity.MethodPickup})
	require.NoError(t, err)
	orderID := res.Orders[0].OrderID

	h, err := e.svc.Payments.CreateIntent(ctx, cust, cents("10.80"), "")
	require.NoError(t, err)
	out, err := e.svc.Payments.MarkCaptured(ctx, orderID, h.GatewayRef)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, entity.PaymentPaid, e.order(orderID).PaymentStatus)

	out, err = e.svc.Payments.MarkCaptured(ctx, orderID, h.GatewayRef)
	require.NoError(t, err)
	assert.False(t, out.Changed)

	_, err = e.svc.Payments.MarkCaptured(ctx, orderID, "sbx_unknown")
	requireCode(t, err, apperr.CodeValidation)
}

func TestMarkFailedWithoutIntent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Cash", "")
	p := e.fx.Product(v, "Ewedu", "2.00", 5)
	res, err := e.svc.Orders.Checkout(ctx, newCustomer(), CheckoutRequest{
		Items: []CheckoutItem{productLine(v, p, 1)}, DeliveryMethod: entity.MethodPickup})
	require.NoError(t, err)

	require.NoError(t, e.svc.Payments.MarkFailed(ctx, res.Orders[0].OrderID, "card expired"))
	assert.Equal(t, entity.PaymentFailed, e.order(res.Orders[0].OrderID).PaymentStatus)
}

func TestPublicConfig(t *testing.T) {
	e := newEnv(t)
	cfg := e.svc.Payments.PublicConfig()
	assert.Equal(t, "sandbox", cfg.Gateway)
	assert.True(t, cfg.TestMode)
	assert.False(t, cfg.PaymentsSuspended)
}
