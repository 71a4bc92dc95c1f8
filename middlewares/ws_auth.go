package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
)

// WSAuthMiddleware reads the token from ?token= first, since browsers cannot
// set headers on a websocket upgrade, then from the Authorization header.
func WSAuthMiddleware(secret string, roles ...services.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tokenStr = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if tokenStr == "" {
			resp.Error(c, apperr.Unauthorized("missing token"))
			return
		}
		if !authenticate(c, tokenStr, secret, roles) {
			return
		}
		c.Next()
	}
}
