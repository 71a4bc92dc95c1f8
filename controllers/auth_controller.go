package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthController struct{ Svc *services.AuthService }

func NewAuthController(s *services.AuthService) *AuthController { return &AuthController{Svc: s} }

// POST /auth/register
func (a *AuthController) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	out, err := a.Svc.Register(c.Request.Context(), req)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.Created(c, out)
}

// POST /auth/login
func (a *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err)
		return
	}
	out, err := a.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, out)
}

// GET /auth/me
func (a *AuthController) Me(c *gin.Context) {
	acc, err := a.Svc.Me(c.Request.Context(), principal(c))
	if err != nil {
		resp.Error(c, err)
		return
	}
	resp.OK(c, acc)
}
