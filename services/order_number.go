package services

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxOrderNumberAttempts = 5

// NewOrderNumber renders EZF-YYYYMMDD-XXXXXXXX from the UTC date and
// 32 random bits. Uniqueness is left to the orders.number index.
func NewOrderNumber(at time.Time) string {
	id := uuid.New()
	return "EZF-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}
