package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/controllers"
	"github.com/kidoxdavid/eazyfoods-sub000/middlewares"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/ws"
)

const (
	customer = services.RoleCustomer
	vendor   = services.RoleVendor
	chef     = services.RoleChef
	driver   = services.RoleDriver
	admin    = services.RoleAdmin
)

// RegisterRoutes mounts the whole HTTP surface on r.
func RegisterRoutes(r *gin.Engine, app *services.AppContext, svc *services.Services, hub *ws.Hub) {
	cfg := app.Config
	r.Use(middlewares.Recovery(app.Log))
	r.Use(middlewares.RequestContext(app.Log, app.Metrics))
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	if app.Metrics != nil {
		r.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	// Controllers
	authCtrl := controllers.NewAuthController(svc.Auth)
	orderCtrl := controllers.NewOrderController(svc.Orders)
	ownerCtrl := controllers.NewOwnerOrderController(svc.Orders)
	driverCtrl := controllers.NewDriverController(svc.Drivers, svc.Dispatch)
	deliveryCtrl := controllers.NewDeliveryController(svc.Dispatch)
	payCtrl := controllers.NewPaymentController(svc.Payments)
	adminCtrl := controllers.NewAdminController(svc)

	auth := func(roles ...services.Role) gin.HandlerFunc {
		return middlewares.AuthMiddleware(cfg.JWTSecret, roles...)
	}

	// Auth (public)
	a := r.Group("/auth")
	{
		a.POST("/register", authCtrl.Register)
		a.POST("/login", authCtrl.Login)
		a.GET("/me", auth(), authCtrl.Me)
	}

	// Orders: every role sees its own slice
	r.POST("/checkout", auth(customer), orderCtrl.Checkout)
	r.GET("/orders", auth(), orderCtrl.List)
	r.GET("/orders/:id", auth(), orderCtrl.Detail)

	// Vendor/Chef
	o := r.Group("/orders/:id", auth(vendor, chef))
	{
		o.PUT("/accept", ownerCtrl.Accept)
		o.PUT("/start-picking", ownerCtrl.StartPicking)
		o.PUT("/mark-ready", ownerCtrl.MarkReady)
		o.PUT("/complete", ownerCtrl.Complete)
		o.PUT("/cancel", ownerCtrl.Cancel)
	}

	// Driver
	d := r.Group("", auth(driver))
	{
		d.PUT("/availability", driverCtrl.SetAvailability)
		d.GET("/available-orders", driverCtrl.AvailableOrders)
		d.GET("/driver/me", driverCtrl.Me)
		d.PUT("/driver/location", driverCtrl.UpdateLocation)
		d.GET("/deliveries", driverCtrl.MyDeliveries)
		d.POST("/deliveries/:id/accept", deliveryCtrl.Accept)
		d.POST("/deliveries/:id/decline", deliveryCtrl.Decline)
		d.PUT("/deliveries/:id/status", deliveryCtrl.UpdateStatus)
		d.POST("/deliveries/:id/update-location", deliveryCtrl.UpdateLocation)
	}
	r.POST("/deliveries/:id/rate", auth(customer), deliveryCtrl.Rate)

	// Payments; callbacks are authenticated by their signature
	p := r.Group("/payments")
	{
		p.GET("/config", payCtrl.Config)
		p.POST("/create-payment-intent", auth(customer), payCtrl.CreateIntent)
		p.POST("/validate-callback", payCtrl.ValidateCallback)
		p.POST("/webhook", payCtrl.Webhook)
	}

	// Admin
	ad := r.Group("/admin", auth(admin))
	{
		ad.POST("/accounts", adminCtrl.CreateAccount)
		ad.GET("/drivers", adminCtrl.ListDrivers)
		ad.GET("/drivers/:id", adminCtrl.GetDriver)
		ad.PUT("/drivers/:id/verify", adminCtrl.VerifyDriver)
		ad.POST("/orders/:id/refund", orderCtrl.Refund)
		ad.PUT("/orders/:id/payment", adminCtrl.SetPayment)
	}

	// Live channels
	if hub != nil {
		r.GET("/ws/deliveries/:order_id", middlewares.WSAuthMiddleware(cfg.JWTSecret, customer), hub.TrackDelivery)
		r.GET("/ws/offers", middlewares.WSAuthMiddleware(cfg.JWTSecret, driver), hub.Offers)
	}
}
