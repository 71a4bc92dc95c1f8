package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

// DriverController is the driver's own surface: availability, the offer
// pool and their delivery history.
type DriverController struct {
	Drivers  *services.DriverService
	Dispatch *services.DispatchService
}

func NewDriverController(d *services.DriverService, dispatch *services.DispatchService) *DriverController {
	return &DriverController{Drivers: d, Dispatch: dispatch}
}

// GET /driver/me
func (h *DriverController) Me(c *gin.Context) {
	p := principal(c)
	d, err := h.Drivers.Get(c.Request.Context(), p, p.SubjectID)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// PUT /availability?is_available=bool
func (h *DriverController) SetAvailability(c *gin.Context) {
	raw := c.Query("is_available")
	available, err := strconv.ParseBool(raw)
	if err != nil {
		resp.Error(c, apperr.Validation("is_available must be true or false"))
		return
	}
	d, err := h.Drivers.SetAvailability(c.Request.Context(), principal(c), available)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// PUT /driver/location  {lat, lng}
func (h *DriverController) UpdateLocation(c *gin.Context) {
	var at services.LatLng
	if err := c.ShouldBindJSON(&at); err != nil {
		resp.BadRequest(c, err)
		return
	}
	d, err := h.Drivers.UpdateLocation(c.Request.Context(), principal(c), at)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, d)
}

// GET /available-orders
func (h *DriverController) AvailableOrders(c *gin.Context) {
	skip, limit, err := utils.PageQuery(c)
	if err != nil {
		resp.Error(c, err)
		return
	}
	page, err := h.Dispatch.ListAvailable(c.Request.Context(), principal(c), skip, limit)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, page)
}

// GET /deliveries?status=&skip=&limit=
func (h *DriverController) MyDeliveries(c *gin.Context) {
	skip, limit, err := utils.PageQuery(c)
	if err != nil {
		resp.Error(c, err)
		return
	}
	page, err := h.Dispatch.ListMine(c.Request.Context(), principal(c), entity.DeliveryStatus(c.Query("status")), skip, limit)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, page)
}
