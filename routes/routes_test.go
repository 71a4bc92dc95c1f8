package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/testdb"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

type api struct {
	t   *testing.T
	r   *gin.Engine
	app *services.AppContext
	svc *services.Services
	bus *events.Bus
	fx  *testdb.Fixtures
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	cfg := testdb.Config()
	m := metrics.New()

	bus := events.NewBus(zap.NewNop(), m, events.Options{Shards: 2, QueueSize: 64, MaxAttempts: 1})
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	app := services.NewAppContext(db, cfg, bus, zap.NewNop(), m)
	svc := services.NewServices(app)
	svc.Subscribe(bus)

	r := gin.New()
	RegisterRoutes(r, app, svc, nil)
	return &api{t: t, r: r, app: app, svc: svc, bus: bus, fx: testdb.NewFixtures(t, db)}
}

func (a *api) token(role services.Role, subject uuid.UUID) string {
	a.t.Helper()
	tok, err := utils.GenerateToken(uuid.New(), subject, string(role), a.app.Config.JWTSecret, a.app.Config.JWTTTL)
	require.NoError(a.t, err)
	return tok
}

type call struct {
	method, path, token string
	body                any
	header              map[string]string
}

func (a *api) do(c call) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func errorOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "body has no error envelope: %v", body)
	return e
}

func (a *api) flush() {
	require.NoError(a.t, a.bus.Flush(context.Background()))
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	w, body := a.do(call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = a.do(call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ezf_http_requests_total{method="GET",route="/health",status="2xx"} 1`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	a := newAPI(t)
	rid := uuid.NewString()
	w, _ := a.do(call{method: http.MethodGet, path: "/health", header: map[string]string{"X-Request-ID": rid}})
	assert.Equal(t, rid, w.Header().Get("X-Request-ID"))

	w, _ = a.do(call{method: http.MethodGet, path: "/health", header: map[string]string{"X-Request-ID": "../../etc"}})
	assert.NotEqual(t, "../../etc", w.Header().Get("X-Request-ID"))
}

func TestAuthGuards(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(call{method: http.MethodGet, path: "/orders"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorOf(t, body)["kind"])

	w, _ = a.do(call{method: http.MethodGet, path: "/orders", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// customers cannot drive seller transitions
	w, body = a.do(call{method: http.MethodPut, path: "/orders/" + uuid.NewString() + "/accept",
		token: a.token(services.RoleCustomer, uuid.New())})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorOf(t, body)["kind"])

	// admin passes every guard
	w, body = a.do(call{method: http.MethodPut, path: "/orders/" + uuid.NewString() + "/accept",
		token: a.token(services.RoleAdmin, uuid.New())})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorOf(t, body)["kind"])

	w, body = a.do(call{method: http.MethodGet, path: "/orders/not-a-uuid",
		token: a.token(services.RoleCustomer, uuid.New())})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorOf(t, body)["kind"])
}

func TestPickupOrderOverHTTP(t *testing.T) {
	a := newAPI(t)
	v := a.fx.Vendor("Corner Grocer", "15")
	p := a.fx.Product(v, "Apples", "10.00", 5)

	w, body := a.do(call{method: http.MethodPost, path: "/auth/register",
		body: map[string]any{"email": "Ada@Example.com", "password": "correct-horse", "name": "Ada"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	customerTok := body["token"].(string)

	w, body = a.do(call{method: http.MethodPost, path: "/auth/login",
		body: map[string]any{"email": "ada@example.com", "password": "correct-horse"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "customer", body["account"].(map[string]any)["role"])

	checkout := call{method: http.MethodPost, path: "/checkout", token: customerTok,
		header: map[string]string{"Idempotency-Key": "cart-1"},
		body: map[string]any{
			"delivery_method": "pickup",
			"items": []map[string]any{{
				"seller_id": v.ID, "seller_kind": "vendor", "product_or_cuisine_id": p.ID, "qty": 2,
			}},
		}}
	w, body = a.do(checkout)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orders := body["orders"].([]any)
	require.Len(t, orders, 1)
	first := orders[0].(map[string]any)
	assert.Equal(t, "21.60", first["total"])
	assert.Equal(t, "Corner Grocer", first["seller_name"])
	assert.Regexp(t, `^EZF-\d{8}-[0-9A-F]{8}$`, first["order_number"])
	orderID := first["order_id"].(string)

	// replay with the same key returns the stored checkout
	w, body = a.do(checkout)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["replayed"])
	assert.Equal(t, int64(3), a.fx.Stock(p.ID))

	vendorTok := a.token(services.RoleVendor, v.ID)
	for _, step := range []string{"accept", "start-picking", "mark-ready", "complete"} {
		w, body = a.do(call{method: http.MethodPut, path: "/orders/" + orderID + "/" + step, token: vendorTok})
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", step, w.Body.String())
		assert.Equal(t, true, body["changed"], step)
	}
	assert.Equal(t, "picked_up", body["to"])

	w, body = a.do(call{method: http.MethodPut, path: "/orders/" + orderID + "/accept", token: vendorTok})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidTransition", errorOf(t, body)["code"])

	w, body = a.do(call{method: http.MethodGet, path: "/orders?status=picked_up", token: vendorTok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = a.do(call{method: http.MethodGet, path: "/orders/" + orderID, token: customerTok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "picked_up", body["status"])
	assert.Len(t, body["history"], 5)

	w, _ = a.do(call{method: http.MethodGet, path: "/orders/" + orderID,
		token: a.token(services.RoleCustomer, uuid.New())})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = a.do(call{method: http.MethodGet, path: "/orders?from=yesterday", token: customerTok})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorOf(t, body)["kind"])
}

func TestCheckoutDomainRejection(t *testing.T) {
	a := newAPI(t)
	v := a.fx.Vendor("Corner Grocer", "")
	p := a.fx.Product(v, "Apples", "10.00", 1)

	w, body := a.do(call{method: http.MethodPost, path: "/checkout", token: a.token(services.RoleCustomer, uuid.New()),
		body: map[string]any{
			"delivery_method": "pickup",
			"items":           []map[string]any{{"seller_id": v.ID, "seller_kind": "vendor", "product_or_cuisine_id": p.ID, "qty": 3}},
		}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := errorOf(t, body)
	assert.Equal(t, "domain", e["kind"])
	assert.Equal(t, "InsufficientStock", e["code"])
	assert.EqualValues(t, 1, e["details"].(map[string]any)["available"])
}

func TestDeliveryOverHTTP(t *testing.T) {
	a := newAPI(t)
	v := a.fx.Vendor("Corner Grocer", "")
	p := a.fx.Product(v, "Apples", "10.00", 5)
	adminTok := a.token(services.RoleAdmin, uuid.New())

	// driver signs up, is verified, goes online
	w, body := a.do(call{method: http.MethodPost, path: "/auth/register", body: map[string]any{
		"email": "dee@example.com", "password": "correct-horse", "name": "Dee", "role": "driver",
		"driver": map[string]any{"vehicle_type": "bike", "license_number": "L-1"},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	driverTok := body["token"].(string)
	driverID := body["account"].(map[string]any)["subject_id"].(string)

	w, body = a.do(call{method: http.MethodPut, path: "/availability?is_available=true", token: driverTok})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "DriverNotEligible", errorOf(t, body)["code"])

	w, _ = a.do(call{method: http.MethodPut, path: "/admin/drivers/" + driverID + "/verify", token: adminTok,
		body: map[string]any{"status": "approved"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = a.do(call{method: http.MethodPut, path: "/availability?is_available=true", token: driverTok})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["is_available"])

	w, _ = a.do(call{method: http.MethodPut, path: "/availability?is_available=maybe", token: driverTok})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// customer orders for delivery
	customer := uuid.New()
	customerTok := a.token(services.RoleCustomer, customer)
	addr := a.fx.Address(customer)
	w, body = a.do(call{method: http.MethodPost, path: "/checkout", token: customerTok, body: map[string]any{
		"delivery_method":     "delivery",
		"delivery_address_id": addr.ID,
		"items":               []map[string]any{{"seller_id": v.ID, "seller_kind": "vendor", "product_or_cuisine_id": p.ID, "qty": 1}},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := body["orders"].([]any)[0].(map[string]any)["order_id"].(string)

	vendorTok := a.token(services.RoleVendor, v.ID)
	for _, step := range []string{"accept", "mark-ready"} {
		w, _ = a.do(call{method: http.MethodPut, path: "/orders/" + orderID + "/" + step, token: vendorTok})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w, body = a.do(call{method: http.MethodPut, path: "/orders/" + orderID + "/complete", token: vendorTok})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NotSellerControlled", errorOf(t, body)["code"])
	a.flush()

	w, body = a.do(call{method: http.MethodGet, path: "/available-orders", token: driverTok})
	require.Equal(t, http.StatusOK, w.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, orderID, items[0].(map[string]any)["order_id"])
	assert.Equal(t, "4.00", items[0].(map[string]any)["driver_earnings"])

	w, body = a.do(call{method: http.MethodPost, path: "/deliveries/" + orderID + "/accept", token: driverTok})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	deliveryID := body["id"].(string)
	assert.Equal(t, "accepted", body["status"])

	w, body = a.do(call{method: http.MethodPost, path: "/deliveries/" + orderID + "/accept",
		token: a.token(services.RoleDriver, a.fx.Driver("Late").ID)})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyTaken", errorOf(t, body)["code"])

	w, _ = a.do(call{method: http.MethodPost, path: "/deliveries/" + deliveryID + "/update-location", token: driverTok,
		body: map[string]any{"lat": 43.65, "lng": -79.38}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = a.do(call{method: http.MethodPut, path: "/availability?is_available=false", token: driverTok})
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, st := range []string{"picked_up", "delivered"} {
		w, body = a.do(call{method: http.MethodPut, path: "/deliveries/" + deliveryID + "/status", token: driverTok,
			body: map[string]any{"status": st}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, st, body["status"])
	}

	w, body = a.do(call{method: http.MethodGet, path: "/driver/me", token: driverTok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["completed_deliveries"])
	assert.Equal(t, "4.00", body["total_earnings"])

	w, body = a.do(call{method: http.MethodPost, path: "/deliveries/" + deliveryID + "/rate", token: customerTok,
		body: map[string]any{"rating": 5, "feedback": "quick"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 5, body["customer_rating"])

	w, body = a.do(call{method: http.MethodPost, path: "/deliveries/" + deliveryID + "/rate", token: customerTok,
		body: map[string]any{"rating": 4}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyRated", errorOf(t, body)["code"])

	w, body = a.do(call{method: http.MethodGet, path: "/deliveries?status=delivered", token: driverTok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestPaymentsOverHTTP(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(call{method: http.MethodGet, path: "/payments/config"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sandbox", body["gateway"])
	assert.Equal(t, true, body["test_mode"])

	customerTok := a.token(services.RoleCustomer, uuid.New())
	w, body = a.do(call{method: http.MethodPost, path: "/payments/create-payment-intent", token: customerTok,
		body: map[string]any{"amount": "21.60"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ref := body["gateway_ref"].(string)
	assert.Equal(t, "21.60", body["amount"])

	raw, err := json.Marshal(map[string]string{"gateway_ref": ref, "status": "captured"})
	require.NoError(t, err)
	sig := a.app.Payments.(*services.SandboxGateway).Sign(raw)

	post := func(path, signature string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("X-Signature", signature)
		w := httptest.NewRecorder()
		a.r.ServeHTTP(w, req)
		out := map[string]any{}
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		return w, out
	}

	w, body = post("/payments/validate-callback", "00")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorOf(t, body)["kind"])

	w, body = post("/payments/validate-callback", sig)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ref, body["transaction_id"])
	assert.Equal(t, "captured", body["status"])

	// the webhook replays the same notification
	w, body = post("/payments/webhook", sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])
}

type hungGateway struct {
	services.PaymentGateway
}

func (hungGateway) CreateIntent(ctx context.Context, _ money.Cents, _ string) (services.GatewayIntent, error) {
	<-ctx.Done()
	return services.GatewayIntent{}, ctx.Err()
}

func TestGatewayTimeoutIs504(t *testing.T) {
	a := newAPI(t)
	a.app.Config.PaymentTimeout = 20 * time.Millisecond
	a.svc.Payments.Gateway = hungGateway{PaymentGateway: a.svc.Payments.Gateway}

	w, body := a.do(call{method: http.MethodPost, path: "/payments/create-payment-intent",
		token: a.token(services.RoleCustomer, uuid.New()), body: map[string]any{"amount": "4.00"}})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code, w.Body.String())
	e := errorOf(t, body)
	assert.Equal(t, "UpstreamTimeout", e["code"])
	assert.Equal(t, "upstream", e["kind"])
}
