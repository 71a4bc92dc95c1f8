package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

type DeliveryController struct{ Dispatch *services.DispatchService }

func NewDeliveryController(s *services.DispatchService) *DeliveryController {
	return &DeliveryController{Dispatch: s}
}

// POST /deliveries/:id/accept  (:id is the order id)
func (h *DeliveryController) Accept(c *gin.Context) {
	orderID, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	d, err := h.Dispatch.Accept(c.Request.Context(), principal(c), orderID)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.Created(c, d)
}

// POST /deliveries/:id/decline  (:id is the order id)
func (h *DeliveryController) Decline(c *gin.Context) {
	orderID, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	if err := h.Dispatch.Decline(c.Request.Context(), principal(c), orderID); err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, gin.H{"declined": true})
}

// PUT /deliveries/:id/status  {status, lat?, lng?, notes?}
func (h *DeliveryController) UpdateStatus(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var req services.DeliveryStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	d, err := h.Dispatch.UpdateStatus(c.Request.Context(), principal(c), id, req)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// POST /deliveries/:id/update-location  {lat, lng}
func (h *DeliveryController) UpdateLocation(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var at services.LatLng
	if err := c.ShouldBindJSON(&at); err != nil {
		resp.BadRequest(c, err)
		return
	}
	d, err := h.Dispatch.UpdateLocation(c.Request.Context(), principal(c), id, at)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// POST /deliveries/:id/rate  {rating, feedback?}
func (h *DeliveryController) Rate(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	var req services.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	d, err := h.Dispatch.Rate(c.Request.Context(), principal(c), id, req)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}
