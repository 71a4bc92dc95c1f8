package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

type AdminController struct {
	Auth     *services.AuthService
	Drivers  *services.DriverService
	Payments *services.PaymentService
}

func NewAdminController(svc *services.Services) *AdminController {
	return &AdminController{Auth: svc.Auth, Drivers: svc.Drivers, Payments: svc.Payments}
}

type verifyDriverReq struct {
	Status entity.VerificationStatus `json:"status" binding:"required"`
	Notes  string                    `json:"notes"`
}

// PUT /admin/drivers/:id/verify
func (ac *AdminController) VerifyDriver(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var req verifyDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	d, err := ac.Drivers.Verify(c.Request.Context(), principal(c), id, req.Status, req.Notes)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// GET /admin/drivers?status=&skip=&limit=
func (ac *AdminController) ListDrivers(c *gin.Context) {
	skip, limit, err := utils.PageQuery(c)
	if err != nil {
		resp.Error(c, err)
		return
	}
	page, err := ac.Drivers.List(c.Request.Context(), principal(c), entity.VerificationStatus(c.Query("status")), skip, limit)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, page)
}

// GET /admin/drivers/:id
func (ac *AdminController) GetDriver(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	d, err := ac.Drivers.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// POST /admin/accounts
func (ac *AdminController) CreateAccount(c *gin.Context) {
	var req services.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	acc, err := ac.Auth.CreateAccount(c.Request.Context(), principal(c), req)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.Created(c, acc)
}

type paymentOverrideReq struct {
	Status     string `json:"status" binding:"required"`
	GatewayRef string `json:"gateway_ref"`
	Reason     string `json:"reason"`
}

// PUT /admin/orders/:id/payment  {status: paid|failed, gateway_ref?, reason?}
// Manual reconciliation when a gateway notification never arrived.
func (ac *AdminController) SetPayment(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var req paymentOverrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	switch req.Status {
	case "paid":
		if req.GatewayRef == "" {
			resp.Error(c, apperr.Validation("gateway_ref is required to mark an order paid"))
			return
		}
		out, err := ac.Payments.MarkCaptured(ctx, id, req.GatewayRef)
		if err != nil {
			resp.Error(c, err)
			return
		}
		resp.OK(c, out)
	case "failed":
		if err := ac.Payments.MarkFailed(ctx, id, req.Reason); err != nil {
			resp.Error(c, err)
			return
		}
		resp.OK(c, gin.H{"status": "failed"})
	default:
		resp.Error(c, apperr.Validationf("unknown payment status %q", req.Status))
	}
}
