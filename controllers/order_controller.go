package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

const idempotencyHeader = "Idempotency-Key"

type OrderController struct{ Orders *services.OrderService }

func NewOrderController(s *services.OrderService) *OrderController {
	return &OrderController{Orders: s}
}

// POST /checkout
func (oc *OrderController) Checkout(c *gin.Context) {
	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	// header wins over the body field
	if key := c.GetHeader(idempotencyHeader); key != "" {
		req.IdempotencyKey = key
	}
	out, err := oc.Orders.Checkout(c.Request.Context(), principal(c), req)
	if err != nil {
		resp.Error(c, err)
		return
	}
	if out.Replayed {
		resp.OK(c, out)
		return
	}
	resp.Created(c, out)
}

// GET /orders?status&delivery_method&from&to&skip&limit
func (oc *OrderController) List(c *gin.Context) {
	skip, limit, err := utils.PageQuery(c)
	if err != nil {
		resp.Error(c, err)
		return
	}
	q := services.OrderQuery{
		Status:         entity.OrderStatus(c.Query("status")),
		DeliveryMethod: entity.DeliveryMethod(c.Query("delivery_method")),
		Skip:           skip,
		Limit:          limit,
	}
	if q.From, err = timeQuery(c, "from"); err != nil {
		resp.Error(c, err)
		return
	}
	if q.To, err = timeQuery(c, "to"); err != nil {
		resp.Error(c, err)
		return
	}
	page, err := oc.Orders.ListOrders(c.Request.Context(), principal(c), q)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, page)
}

// GET /orders/:id
func (oc *OrderController) Detail(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	d, err := oc.Orders.GetOrderDetail(c.Request.Context(), principal(c), id)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

type refundReq struct {
	// empty refunds the whole total
	Amount *money.Cents `json:"amount"`
}

// POST /admin/orders/:id/refund
func (oc *OrderController) Refund(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var req refundReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			resp.BadRequest(c, err)
			return
		}
	}
	o, err := oc.Orders.Refund(c.Request.Context(), principal(c), id, req.Amount)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, o)
}

// timeQuery accepts RFC 3339 timestamps or plain dates.
func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Validationf("%s must be RFC 3339 or YYYY-MM-DD", name)
}
