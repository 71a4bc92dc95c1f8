// controllers/owner_order_controller.go
package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

// OwnerOrderController serves vendor and chef actions on their orders.
type OwnerOrderController struct {
	Orders *services.OrderService
}

func NewOwnerOrderController(s *services.OrderService) *OwnerOrderController {
	return &OwnerOrderController{Orders: s}
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// PUT /orders/:id/accept
func (ctl *OwnerOrderController) Accept(c *gin.Context) {
	ctl.transition(c, services.ActionAccept, "")
}

// PUT /orders/:id/start-picking
func (ctl *OwnerOrderController) StartPicking(c *gin.Context) {
	ctl.transition(c, services.ActionStartPicking, "")
}

// PUT /orders/:id/mark-ready
func (ctl *OwnerOrderController) MarkReady(c *gin.Context) {
	ctl.transition(c, services.ActionMarkReady, "")
}

// PUT /orders/:id/complete
func (ctl *OwnerOrderController) Complete(c *gin.Context) {
	ctl.transition(c, services.ActionComplete, "")
}

// PUT /orders/:id/cancel  {reason}; ?reason= also works
func (ctl *OwnerOrderController) Cancel(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			resp.BadRequest(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}
	ctl.transition(c, services.ActionCancel, req.Reason)
}

func (ctl *OwnerOrderController) transition(c *gin.Context, action services.SellerAction, reason string) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	res, err := ctl.Orders.SellerTransition(c.Request.Context(), principal(c), id, action, reason)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, res)
}
