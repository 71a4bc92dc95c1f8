package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type GatewayIntent struct {
	Ref          string
	ClientSecret string
}

// CallbackResult is a verified gateway notification.
type CallbackResult struct {
	GatewayRef string
	Status     entity.IntentStatus
	Message    string
}

// PaymentGateway is the narrow port to an external payment provider.
type PaymentGateway interface {
	Name() string
	CreateIntent(ctx context.Context, amount money.Cents, currency string) (GatewayIntent, error)
	VerifyCallback(raw []byte, signature string) (CallbackResult, error)
	Refund(ctx context.Context, ref string, amount money.Cents) error
}

// SandboxGateway settles nothing itself: intents are captured or failed by
// a callback signed with HMAC-SHA256 over the raw body.
type SandboxGateway struct {
	secret   string
	testMode bool
}

func NewSandboxGateway(secret string, testMode bool) *SandboxGateway {
	return &SandboxGateway{secret: secret, testMode: testMode}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) CreateIntent(ctx context.Context, amount money.Cents, currency string) (GatewayIntent, error) {
	if err := ctx.Err(); err != nil {
		return GatewayIntent{}, err
	}
	if amount <= 0 {
		return GatewayIntent{}, apperr.PaymentDeclined("amount must be positive")
	}
	ref := "sbx_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return GatewayIntent{Ref: ref, ClientSecret: ref + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]}, nil
}

type sandboxCallback struct {
	GatewayRef string `json:"gateway_ref"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Sign is what the sandbox provider puts in the signature header.
func (g *SandboxGateway) Sign(raw []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *SandboxGateway) VerifyCallback(raw []byte, signature string) (CallbackResult, error) {
	// test mode without a secret accepts unsigned callbacks
	if g.secret != "" || !g.testMode {
		want, err := hex.DecodeString(strings.TrimSpace(signature))
		if err != nil || !hmac.Equal(want, mustHex(g.Sign(raw))) {
			return CallbackResult{}, apperr.Validation("invalid callback signature")
		}
	}

	var cb sandboxCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return CallbackResult{}, apperr.Validation("malformed callback body")
	}
	if cb.GatewayRef == "" {
		return CallbackResult{}, apperr.Validation("gateway_ref is required")
	}
	res := CallbackResult{GatewayRef: cb.GatewayRef, Message: cb.Message}
	switch cb.Status {
	case "captured", "succeeded", "paid":
		res.Status = entity.IntentCaptured
	case "failed", "declined":
		res.Status = entity.IntentFailed
	default:
		return CallbackResult{}, apperr.Validationf("unknown callback status %q", cb.Status)
	}
	return res, nil
}

func (g *SandboxGateway) Refund(ctx context.Context, ref string, amount money.Cents) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(ref, "sbx_") {
		return apperr.PaymentDeclined("unknown sandbox reference")
	}
	return nil
}

func mustHex(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
