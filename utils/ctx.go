package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
)

const (
	ctxAccountID = "accountId"
	ctxSubjectID = "subjectId"
	ctxRole      = "role"
	ctxRequestID = "requestId"
)

// SetIdentity stores the verified token identity for handlers.
func SetIdentity(c *gin.Context, accountID, subjectID uuid.UUID, role string) {
	c.Set(ctxAccountID, accountID)
	c.Set(ctxSubjectID, subjectID)
	c.Set(ctxRole, role)
}

func CurrentAccountID(c *gin.Context) uuid.UUID {
	return uuidValue(c, ctxAccountID)
}

func CurrentSubjectID(c *gin.Context) uuid.UUID {
	return uuidValue(c, ctxSubjectID)
}

func CurrentRole(c *gin.Context) string {
	if v, ok := c.Get(ctxRole); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func uuidValue(c *gin.Context, key string) uuid.UUID {
	if v, ok := c.Get(key); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func SetRequestID(c *gin.Context, id string) { c.Set(ctxRequestID, id) }

func RequestID(c *gin.Context) string { return c.GetString(ctxRequestID) }

// ParamUUID reads a path parameter as a uuid.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validationf("%s must be a uuid", name)
	}
	return id, nil
}

// PageQuery reads ?skip=&limit=; absent values are zero.
func PageQuery(c *gin.Context) (skip, limit int, err error) {
	if skip, err = intQuery(c, "skip"); err != nil {
		return 0, 0, err
	}
	if limit, err = intQuery(c, "limit"); err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validationf("%s must be an integer", name)
	}
	return n, nil
}
