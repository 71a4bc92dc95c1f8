package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/configs"
	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

type PaymentService struct {
	DB        *gorm.DB
	Repo      *repository.PaymentRepository
	OrderRepo *repository.OrderRepository
	Gateway   PaymentGateway
	Clock     Clock
	Config    *configs.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

func NewPaymentService(app *AppContext) *PaymentService {
	return &PaymentService{
		DB:        app.DB,
		Repo:      repository.NewPaymentRepository(app.DB),
		OrderRepo: repository.NewOrderRepository(app.DB),
		Gateway:   app.Payments,
		Clock:     app.Clock,
		Config:    app.Config,
		Log:       app.Log,
		Metrics:   app.Metrics,
	}
}

// GET /payments/config
type PaymentConfig struct {
	Gateway           string `json:"gateway"`
	TestMode          bool   `json:"test_mode"`
	PaymentsSuspended bool   `json:"payments_suspended"`
	PublishableKey    string `json:"publishable_key,omitempty"`
	Currency          string `json:"currency"`
}

func (s *PaymentService) PublicConfig() PaymentConfig {
	return PaymentConfig{
		Gateway:           s.Gateway.Name(),
		TestMode:          s.Config.PaymentTestMode,
		PaymentsSuspended: s.Config.PaymentsSuspended,
		PublishableKey:    s.Config.PaymentPublishableKey,
		Currency:          s.Config.Currency,
	}
}

type IntentHandle struct {
	IntentID     uuid.UUID   `json:"intent_id"`
	ClientSecret string      `json:"client_secret"`
	GatewayRef   string      `json:"gateway_ref"`
	Gateway      string      `json:"gateway"`
	Amount       money.Cents `json:"amount"`
	Currency     string      `json:"currency"`
}

// CreateIntent asks the gateway for an intent and persists it as created.
func (s *PaymentService) CreateIntent(ctx context.Context, p Principal, amount money.Cents, gatewayHint string) (*IntentHandle, error) {
	if err := requireRole(p, RoleCustomer); err != nil {
		return nil, err
	}
	if s.Config.PaymentsSuspended {
		return nil, apperr.UpstreamUnavailable("payments", "payments are temporarily suspended")
	}
	if amount <= 0 {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	if gatewayHint != "" && gatewayHint != s.Gateway.Name() {
		return nil, apperr.Validationf("gateway %q is not enabled", gatewayHint)
	}

	var gi GatewayIntent
	err := callUpstream(ctx, s.Config.PaymentTimeout, "payments", func(ctx context.Context) error {
		var err error
		gi, err = s.Gateway.CreateIntent(ctx, amount, s.Config.Currency)
		return err
	})
	if err != nil {
		s.Metrics.UseCase("create_payment_intent", outcome(err))
		return nil, err
	}

	pi := &entity.PaymentIntent{
		Gateway:      s.Gateway.Name(),
		AmountCents:  amount,
		Currency:     s.Config.Currency,
		Status:       entity.IntentCreated,
		GatewayRef:   gi.Ref,
		ClientSecret: gi.ClientSecret,
		CustomerID:   p.SubjectID,
	}
	if err := s.Repo.Create(s.DB.WithContext(ctx), pi); err != nil {
		return nil, err
	}
	s.Metrics.UseCase("create_payment_intent", "ok")
	logging.FromContext(ctx, s.Log).Info("payment_intent_created",
		zap.String("intent_id", pi.ID.String()), zap.String("amount", amount.String()))
	return &IntentHandle{
		IntentID:     pi.ID,
		ClientSecret: gi.ClientSecret,
		GatewayRef:   gi.Ref,
		Gateway:      pi.Gateway,
		Amount:       amount,
		Currency:     pi.Currency,
	}, nil
}

// intentForCheckout loads a customer's intent for use as a checkout payment hint.
func (s *PaymentService) intentForCheckout(ctx context.Context, intentID, customerID uuid.UUID) (*entity.PaymentIntent, error) {
	pi, err := s.Repo.Get(s.DB.WithContext(ctx), intentID)
	if err != nil {
		return nil, notFoundOr(err, "payment intent")
	}
	if pi.CustomerID != customerID {
		return nil, apperr.Forbidden("payment intent belongs to another customer")
	}
	if pi.CheckoutID != nil {
		return nil, apperr.Conflict(apperr.CodeValidation, "payment intent already used by another checkout")
	}
	return pi, nil
}

// bindCheckout runs inside the checkout transaction.
func (s *PaymentService) bindCheckout(tx *gorm.DB, intentID, checkoutID uuid.UUID) error {
	affected, err := s.Repo.BindCheckoutGuard(tx, intentID, checkoutID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.Conflict(apperr.CodeValidation, "payment intent already used by another checkout")
	}
	return nil
}

type CallbackOutcome struct {
	TransactionID string              `json:"transaction_id"`
	Status        entity.IntentStatus `json:"status"`
	Changed       bool                `json:"changed"`
}

// ValidateCallback verifies and applies a gateway notification. Replaying
// the same gateway_ref after capture changes nothing.
func (s *PaymentService) ValidateCallback(ctx context.Context, raw []byte, signature string) (*CallbackOutcome, error) {
	res, err := s.Gateway.VerifyCallback(raw, signature)
	if err != nil {
		s.Metrics.UseCase("validate_callback", outcome(err))
		return nil, err
	}
	var out *CallbackOutcome
	switch res.Status {
	case entity.IntentCaptured:
		out, err = s.capture(ctx, res.GatewayRef, nil)
	default:
		out, err = s.fail(ctx, res.GatewayRef, res.Message)
	}
	s.Metrics.UseCase("validate_callback", outcome(err))
	return out, err
}

// MarkCaptured captures by gateway ref on behalf of one order; an unbound
// intent is bound to that order's checkout first.
func (s *PaymentService) MarkCaptured(ctx context.Context, orderID uuid.UUID, gatewayRef string) (*CallbackOutcome, error) {
	return s.capture(ctx, gatewayRef, &orderID)
}

func (s *PaymentService) capture(ctx context.Context, ref string, orderID *uuid.UUID) (*CallbackOutcome, error) {
	out := &CallbackOutcome{TransactionID: ref, Status: entity.IntentCaptured}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pi, err := s.Repo.GetByGatewayRef(tx, ref)
		if err != nil {
			if apperr.KindOf(notFoundOr(err, "payment intent")) == apperr.KindNotFound {
				return apperr.Validationf("unknown gateway_ref %q", ref)
			}
			return err
		}

		bound := false
		if orderID != nil {
			o, err := s.OrderRepo.GetOrder(tx, *orderID)
			if err != nil {
				return notFoundOr(err, "order")
			}
			switch {
			case pi.CheckoutID == nil:
				if err := s.bindCheckout(tx, pi.ID, o.CheckoutID); err != nil {
					return err
				}
				pi.CheckoutID = &o.CheckoutID
				bound = true
			case *pi.CheckoutID != o.CheckoutID:
				return apperr.Conflict(apperr.CodeValidation, "gateway_ref belongs to another checkout")
			}
		}

		switch pi.Status {
		case entity.IntentCaptured:
			if !bound {
				return nil
			}
			// captured before the checkout existed
			out.Changed = true
			_, err := s.OrderRepo.SetPaymentStatusByCheckout(tx, *pi.CheckoutID,
				[]entity.PaymentStatus{entity.PaymentPending, entity.PaymentFailed}, entity.PaymentPaid)
			return err
		case entity.IntentRefunded:
			out.Status = pi.Status
			return nil
		}
		now := s.Clock.Now()
		affected, err := s.Repo.UpdateStatusGuard(tx, pi.ID, pi.Status, entity.IntentCaptured,
			map[string]any{"captured_at": now})
		if err != nil {
			return err
		}
		if affected == 0 {
			// a concurrent callback won; its result stands
			return nil
		}
		out.Changed = true
		if pi.CheckoutID != nil {
			_, err = s.OrderRepo.SetPaymentStatusByCheckout(tx, *pi.CheckoutID,
				[]entity.PaymentStatus{entity.PaymentPending, entity.PaymentFailed}, entity.PaymentPaid)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("payment_captured",
		zap.String("gateway_ref", ref), zap.Bool("changed", out.Changed))
	return out, nil
}

// MarkFailed fails the pending payment of an order's checkout.
func (s *PaymentService) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	db := s.DB.WithContext(ctx)
	o, err := s.OrderRepo.GetOrder(db, orderID)
	if err != nil {
		return notFoundOr(err, "order")
	}
	pi, err := s.Repo.GetByCheckout(db, o.CheckoutID)
	if err == nil {
		_, err = s.fail(ctx, pi.GatewayRef, reason)
		return err
	}
	if apperr.KindOf(notFoundOr(err, "payment intent")) != apperr.KindNotFound {
		return err
	}
	// no intent: only the order side moves
	_, err = s.OrderRepo.SetPaymentStatusByCheckout(db, o.CheckoutID,
		[]entity.PaymentStatus{entity.PaymentPending}, entity.PaymentFailed)
	return err
}

func (s *PaymentService) fail(ctx context.Context, ref, reason string) (*CallbackOutcome, error) {
	out := &CallbackOutcome{TransactionID: ref, Status: entity.IntentFailed}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pi, err := s.Repo.GetByGatewayRef(tx, ref)
		if err != nil {
			if apperr.KindOf(notFoundOr(err, "payment intent")) == apperr.KindNotFound {
				return apperr.Validationf("unknown gateway_ref %q", ref)
			}
			return err
		}
		if pi.Status != entity.IntentCreated {
			// never downgrade a capture
			out.Status = pi.Status
			return nil
		}
		affected, err := s.Repo.UpdateStatusGuard(tx, pi.ID, entity.IntentCreated, entity.IntentFailed,
			map[string]any{"failed_at": s.Clock.Now(), "failure_reason": reason})
		if err != nil || affected == 0 {
			return err
		}
		out.Changed = true
		if pi.CheckoutID != nil {
			_, err = s.OrderRepo.SetPaymentStatusByCheckout(tx, *pi.CheckoutID,
				[]entity.PaymentStatus{entity.PaymentPending}, entity.PaymentFailed)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("payment_failed",
		zap.String("gateway_ref", ref), zap.String("reason", reason), zap.Bool("changed", out.Changed))
	return out, nil
}

// refundAtGateway returns money for a paid order through the gateway.
func (s *PaymentService) refundAtGateway(ctx context.Context, checkoutID uuid.UUID, amount money.Cents) (*entity.PaymentIntent, error) {
	pi, err := s.Repo.GetByCheckout(s.DB.WithContext(ctx), checkoutID)
	if err != nil {
		if apperr.KindOf(notFoundOr(err, "payment intent")) == apperr.KindNotFound {
			// paid outside the gateway (e.g. cash); nothing to call
			return nil, nil
		}
		return nil, err
	}
	err = callUpstream(ctx, s.Config.PaymentTimeout, "payments", func(ctx context.Context) error {
		return s.Gateway.Refund(ctx, pi.GatewayRef, amount)
	})
	return pi, err
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := apperr.As(err); ok {
		return e.Code
	}
	return apperr.CodeInternal
}
