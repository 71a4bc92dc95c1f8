package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

// principal rebuilds the caller identity the auth middleware stored on c.
func principal(c *gin.Context) services.Principal {
	return services.Principal{
		Role:      services.Role(utils.CurrentRole(c)),
		AccountID: utils.CurrentAccountID(c),
		SubjectID: utils.CurrentSubjectID(c),
	}
}
