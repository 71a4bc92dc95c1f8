package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

// AuthMiddleware verifies the bearer token and, when roles are given,
// enforces one of them. Admin passes every role check.
func AuthMiddleware(secret string, roles ...services.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			resp.Error(c, apperr.Unauthorized("missing or invalid token"))
			return
		}
		if !authenticate(c, strings.TrimPrefix(h, "Bearer "), secret, roles) {
			return
		}
		c.Next()
	}
}

// authenticate stores the identity on c, or writes the error and aborts.
func authenticate(c *gin.Context, raw, secret string, roles []services.Role) bool {
	claims, err := utils.ParseToken(raw, secret)
	if err != nil {
		resp.Error(c, apperr.Unauthorized("invalid token"))
		return false
	}
	p, err := services.PrincipalFromClaims(claims)
	if err != nil {
		resp.Error(c, err)
		return false
	}
	if len(roles) > 0 && !p.IsAdmin() && !hasRole(p.Role, roles) {
		resp.Error(c, apperr.Forbidden("role "+string(p.Role)+" not permitted"))
		return false
	}
	utils.SetIdentity(c, p.AccountID, p.SubjectID, string(p.Role))
	return true
}

func hasRole(r services.Role, roles []services.Role) bool {
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}
