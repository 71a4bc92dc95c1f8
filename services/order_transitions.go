// services/order_transitions.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type SellerAction string

const (
	ActionAccept       SellerAction = "accept"
	ActionStartPicking SellerAction = "start_picking"
	ActionMarkReady    SellerAction = "mark_ready"
	ActionComplete     SellerAction = "complete"
	ActionCancel       SellerAction = "cancel"
)

type sellerRule struct {
	from  []entity.OrderStatus
	to    entity.OrderStatus
	stamp string
}

var sellerRules = map[SellerAction]sellerRule{
	ActionAccept:       {from: []entity.OrderStatus{entity.OrderNew}, to: entity.OrderAccepted, stamp: "accepted_at"},
	ActionStartPicking: {from: []entity.OrderStatus{entity.OrderAccepted}, to: entity.OrderPicking},
	ActionMarkReady:    {from: []entity.OrderStatus{entity.OrderAccepted, entity.OrderPicking}, to: entity.OrderReady, stamp: "ready_at"},
	// customer collected a pickup order
	ActionComplete: {from: []entity.OrderStatus{entity.OrderReady}, to: entity.OrderPickedUp, stamp: "picked_up_at"},
	ActionCancel: {
		from:  []entity.OrderStatus{entity.OrderNew, entity.OrderAccepted, entity.OrderPicking, entity.OrderReady},
		to:    entity.OrderCancelled,
		stamp: "cancelled_at",
	},
}

func (r sellerRule) allows(s entity.OrderStatus) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

type TransitionResult struct {
	Order   *entity.Order      `json:"order"`
	From    entity.OrderStatus `json:"from"`
	To      entity.OrderStatus `json:"to"`
	Changed bool               `json:"changed"`
}

// ----- Seller actions -----

// SellerTransition applies a vendor/chef action. Re-issuing an action whose
// target status is already reached returns Changed=false and writes nothing,
// except accept which reports AlreadyAccepted.
func (s *OrderService) SellerTransition(ctx context.Context, p Principal, orderID uuid.UUID, action SellerAction, reason string) (*TransitionResult, error) {
	ctx, span := s.Tracer.Start(ctx, "OrderService.SellerTransition")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID.String()), attribute.String("action", string(action)))

	res, evs, err := s.sellerTransition(ctx, p, orderID, action, reason)
	s.Metrics.UseCase("seller_"+string(action), outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.publish(ctx, evs...)
	logging.FromContext(ctx, s.Log).Info("order_transition",
		zap.String("order_id", orderID.String()),
		zap.String("action", string(action)),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.Bool("changed", res.Changed))
	return res, nil
}

func (s *OrderService) sellerTransition(ctx context.Context, p Principal, orderID uuid.UUID, action SellerAction, reason string) (*TransitionResult, []events.Event, error) {
	if err := requireRole(p, RoleVendor, RoleChef); err != nil {
		return nil, nil, err
	}
	rule, ok := sellerRules[action]
	if !ok {
		return nil, nil, apperr.Validationf("unknown action %q", action)
	}

	var res *TransitionResult
	var evs []events.Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.Repo.GetOrder(tx, orderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if !p.IsAdmin() && !p.OwnsAsSeller(o) {
			return apperr.Forbidden("order belongs to another seller")
		}
		current := o.Status

		if action == ActionComplete && o.DeliveryMethod == entity.MethodDelivery {
			return apperr.NotSellerControlled(string(current))
		}
		if current == rule.to {
			if action == ActionAccept {
				return apperr.AlreadyAccepted()
			}
			res = &TransitionResult{Order: o, From: current, To: current}
			return nil
		}
		if !rule.allows(current) {
			return apperr.InvalidTransition(string(current), string(action))
		}
		if action == ActionCancel && current != entity.OrderNew && reason == "" {
			return apperr.Validation("reason is required to cancel an order that was already accepted")
		}

		now := s.Clock.Now()
		updates := map[string]any{}
		if rule.stamp != "" {
			updates[rule.stamp] = now
		}
		if action == ActionCancel && reason != "" {
			updates["cancellation_reason"] = reason
		}
		affected, err := s.Repo.UpdateStatusGuard(tx, o.ID, current, rule.to, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.ConcurrentUpdate("order")
		}
		actor := p.SubjectID
		if err := s.Repo.AppendHistory(tx, &entity.OrderStatusHistory{
			OrderID:   o.ID,
			Status:    rule.to,
			ActorID:   &actor,
			ActorRole: string(p.Role),
			Notes:     reason,
			At:        now,
		}); err != nil {
			return err
		}

		if action == ActionCancel {
			dev, err := s.cancelSideEffects(tx, o, reason, now)
			if err != nil {
				return err
			}
			if dev != nil {
				evs = append(evs, *dev)
			}
		}

		o, err = s.Repo.GetOrder(tx, o.ID)
		if err != nil {
			return err
		}
		res = &TransitionResult{Order: o, From: current, To: rule.to, Changed: true}
		evs = append([]events.Event{statusChanged(o, current, p, reason, now)}, evs...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, evs, nil
}

// cancelSideEffects restocks the order's products and drops an accepted
// delivery still waiting for pickup.
func (s *OrderService) cancelSideEffects(tx *gorm.DB, o *entity.Order, reason string, now time.Time) (*events.DeliveryStatusChanged, error) {
	items, err := s.Repo.GetOrderItems(tx, o.ID)
	if err != nil {
		return nil, err
	}
	var rs []Reservation
	for _, it := range items {
		if it.ProductID != nil {
			rs = append(rs, Reservation{ProductID: *it.ProductID, Quantity: int64(it.Quantity)})
		}
	}
	if err := s.Inventory.Release(tx, rs); err != nil {
		return nil, err
	}

	d, err := s.Deliveries.GetByOrder(tx, o.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Status != entity.DeliveryAccepted {
		return nil, nil
	}
	affected, err := s.Deliveries.UpdateStatusGuard(tx, d.ID, entity.DeliveryAccepted, entity.DeliveryCancelled,
		map[string]any{"notes": "order cancelled by seller: " + reason})
	if err != nil || affected == 0 {
		return nil, err
	}
	return &events.DeliveryStatusChanged{
		DeliveryID: d.ID,
		OrderID:    o.ID,
		DriverID:   d.DriverID,
		From:       string(entity.DeliveryAccepted),
		To:         string(entity.DeliveryCancelled),
		OccurredAt: now,
	}, nil
}

func statusChanged(o *entity.Order, from entity.OrderStatus, p Principal, reason string, at time.Time) events.OrderStatusChanged {
	return events.OrderStatusChanged{
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		From:           string(from),
		To:             string(o.Status),
		ActorID:        p.SubjectID,
		ActorRole:      string(p.Role),
		DeliveryMethod: string(o.DeliveryMethod),
		SellerKind:     string(o.SellerKind),
		SellerID:       o.SellerID(),
		Reason:         reason,
		OccurredAt:     at,
	}
}

// ----- Refund -----

// Refund returns money on a finished, paid order. A nil amount refunds the
// full total. The gateway is called before anything is persisted.
func (s *OrderService) Refund(ctx context.Context, p Principal, orderID uuid.UUID, amount *money.Cents) (*entity.Order, error) {
	ctx, span := s.Tracer.Start(ctx, "OrderService.Refund")
	defer span.End()

	o, err := s.refund(ctx, p, orderID, amount)
	s.Metrics.UseCase("refund", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

func (s *OrderService) refund(ctx context.Context, p Principal, orderID uuid.UUID, amount *money.Cents) (*entity.Order, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("refunds are issued by an admin")
	}
	db := s.DB.WithContext(ctx)
	o, err := s.Repo.GetOrder(db, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if o.Status != entity.OrderPickedUp && o.Status != entity.OrderDelivered {
		return nil, apperr.InvalidTransition(string(o.Status), "refund")
	}
	switch o.PaymentStatus {
	case entity.PaymentPaid:
	case entity.PaymentRefunded:
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "order already refunded")
	default:
		return nil, apperr.New(apperr.KindState, apperr.CodeInvalidTransition,
			"only paid orders can be refunded").With("payment_status", string(o.PaymentStatus))
	}

	amt := o.Total
	if amount != nil {
		amt = *amount
	}
	if amt <= 0 || amt > o.Total {
		return nil, apperr.Validationf("refund amount must be between 0.01 and %s", o.Total)
	}

	intent, err := s.Payments.refundAtGateway(ctx, o.CheckoutID, amt)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.Repo.RefundGuard(tx, o.ID, int64(amt), now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.ConcurrentUpdate("order")
		}
		if intent == nil {
			return nil
		}
		return s.Payments.Repo.AddRefund(tx, intent.ID, int64(amt))
	})
	if err != nil {
		return nil, err
	}

	o, err = s.Repo.GetOrder(db, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderRefunded{OrderID: o.ID, Amount: amt, Full: amt == o.Total, OccurredAt: now})
	logging.FromContext(ctx, s.Log).Info("order_refunded",
		zap.String("order_id", o.ID.String()), zap.String("amount", amt.String()))
	return o, nil
}
