package controllers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
)

const (
	signatureHeader = "X-Signature"
	maxCallbackBody = 64 << 10
)

type PaymentController struct {
	Payments *services.PaymentService
}

func NewPaymentController(s *services.PaymentService) *PaymentController {
	return &PaymentController{Payments: s}
}

type createIntentReq struct {
	Amount  money.Cents `json:"amount" binding:"required"`
	Gateway string      `json:"gateway"`
}

// GET /payments/config
func (pc *PaymentController) Config(c *gin.Context) {
	resp.OK(c, pc.Payments.PublicConfig())
}

// POST /payments/create-payment-intent
func (pc *PaymentController) CreateIntent(c *gin.Context) {
	var req createIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	h, err := pc.Payments.CreateIntent(c.Request.Context(), principal(c), req.Amount, req.Gateway)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.Created(c, h)
}

// POST /payments/validate-callback
func (pc *PaymentController) ValidateCallback(c *gin.Context) {
	out, ok := pc.verify(c)
	if !ok {
		return
	}
	resp.OK(c, gin.H{"transaction_id": out.TransactionID, "status": out.Status})
}

// POST /payments/webhook
func (pc *PaymentController) Webhook(c *gin.Context) {
	out, ok := pc.verify(c)
	if !ok {
		return
	}
	resp.OK(c, gin.H{"received": true, "changed": out.Changed})
}

// verify hands the untouched body to the gateway; the signature covers raw bytes.
func (pc *PaymentController) verify(c *gin.Context) (*services.CallbackOutcome, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		resp.Error(c, apperr.Validation("unreadable callback body"))
		return nil, false
	}
	out, err := pc.Payments.ValidateCallback(c.Request.Context(), raw, c.GetHeader(signatureHeader))
	if err != nil {
		resp.Error(c, err)
		return nil, false
	}
	return out, true
}
