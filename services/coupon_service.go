package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

// Coupon rejection reasons, surfaced as CouponInvalid{reason}.
const (
	CouponNotFound                = "NotFound"
	CouponInactive                = "Inactive"
	CouponNotApproved             = "NotApproved"
	CouponNotStarted              = "NotStarted"
	CouponExpired                 = "Expired"
	CouponUsageLimitReached       = "UsageLimitReached"
	CouponPerCustomerLimitReached = "PerCustomerLimitReached"
	CouponNotFirstTime            = "NotFirstTime"
	CouponMinimumAmount           = "MinimumAmount"
	CouponMinimumItems            = "MinimumItems"
)

type CouponLine struct {
	SellerKind entity.SellerKind
	SellerID   uuid.UUID
	Quantity   int
	LineTotal  money.Cents
}

type CouponRequest struct {
	Code       string
	CustomerID uuid.UUID
	Lines      []CouponLine
	Subtotal   money.Cents
	Now        time.Time
}

type CouponEvaluation struct {
	CouponID           uuid.UUID
	Code               string
	Kind               entity.CouponKind
	ApplicableSubtotal money.Cents
	Discount           money.Cents
	FreeShipping       bool

	scopeKind entity.SellerKind
	scopeID   *uuid.UUID
}

// Applies reports whether a seller's lines fall under the coupon scope.
func (e *CouponEvaluation) Applies(kind entity.SellerKind, id uuid.UUID) bool {
	if e.scopeID == nil {
		return true
	}
	return e.scopeKind == kind && *e.scopeID == id
}

type CouponRedemption struct {
	CouponID   uuid.UUID
	CustomerID uuid.UUID
	CheckoutID uuid.UUID
	Discount   money.Cents
	At         time.Time
}

// CouponEvaluator is the port the order engine consumes.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, req CouponRequest) (*CouponEvaluation, error)
	// Redeem records usage inside the checkout transaction.
	Redeem(tx *gorm.DB, r CouponRedemption) error
}

type CouponService struct {
	DB   *gorm.DB
	Repo *repository.CouponRepository
}

func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{DB: db, Repo: repository.NewCouponRepository(db)}
}

func (s *CouponService) Evaluate(ctx context.Context, req CouponRequest) (*CouponEvaluation, error) {
	db := s.DB.WithContext(ctx)
	c, err := s.Repo.FindByCode(db, req.Code)
	if err != nil {
		if e := notFoundOr(err, "coupon"); apperr.KindOf(e) == apperr.KindNotFound {
			return nil, apperr.CouponInvalid(CouponNotFound)
		}
		return nil, err
	}

	switch {
	case !c.IsActive:
		return nil, apperr.CouponInvalid(CouponInactive)
	case !c.IsApproved:
		return nil, apperr.CouponInvalid(CouponNotApproved)
	case c.StartsAt != nil && req.Now.Before(*c.StartsAt):
		return nil, apperr.CouponInvalid(CouponNotStarted)
	case c.EndsAt != nil && !req.Now.Before(*c.EndsAt):
		return nil, apperr.CouponInvalid(CouponExpired)
	case c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit:
		return nil, apperr.CouponInvalid(CouponUsageLimitReached)
	}

	if c.PerCustomerLimit != nil {
		used, err := s.Repo.CountCustomerUsage(db, c.ID, req.CustomerID)
		if err != nil {
			return nil, err
		}
		if used >= *c.PerCustomerLimit {
			return nil, apperr.CouponInvalid(CouponPerCustomerLimitReached)
		}
	}
	if c.FirstTimeOnly {
		has, err := s.Repo.CustomerHasOrders(db, req.CustomerID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, apperr.CouponInvalid(CouponNotFirstTime)
		}
	}

	ev := &CouponEvaluation{CouponID: c.ID, Code: c.Code, Kind: c.Kind}
	switch {
	case c.VendorID != nil:
		ev.scopeKind, ev.scopeID = entity.SellerVendor, c.VendorID
	case c.ChefID != nil:
		ev.scopeKind, ev.scopeID = entity.SellerChef, c.ChefID
	}

	items := 0
	for _, l := range req.Lines {
		if ev.Applies(l.SellerKind, l.SellerID) {
			ev.ApplicableSubtotal += l.LineTotal
			items += l.Quantity
		}
	}
	if ev.ApplicableSubtotal == 0 || ev.ApplicableSubtotal < c.MinimumAmount {
		return nil, apperr.CouponInvalid(CouponMinimumAmount).With("minimum_amount", c.MinimumAmount.String())
	}
	if items < c.MinimumItems {
		return nil, apperr.CouponInvalid(CouponMinimumItems).With("minimum_items", c.MinimumItems)
	}

	switch c.Kind {
	case entity.CouponPercentage:
		ev.Discount = ev.ApplicableSubtotal.Percent(c.PercentOff)
	case entity.CouponFixed:
		ev.Discount = c.AmountOff
	case entity.CouponFreeShipping:
		ev.FreeShipping = true
	default:
		return nil, apperr.CouponInvalid(CouponInactive)
	}
	if c.MaxDiscount > 0 {
		ev.Discount = money.Min(ev.Discount, c.MaxDiscount)
	}
	ev.Discount = money.Min(ev.Discount, ev.ApplicableSubtotal)
	return ev, nil
}

func (s *CouponService) Redeem(tx *gorm.DB, r CouponRedemption) error {
	c, err := s.Repo.FindByCouponID(tx, r.CouponID)
	if err != nil {
		return notFoundOr(err, "coupon")
	}
	affected, err := s.Repo.IncrementUsageGuard(tx, r.CouponID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.Conflict(apperr.CodeCouponRace, "coupon usage limit reached concurrently").
			With("reason", CouponUsageLimitReached)
	}
	u := &entity.CouponUsage{
		CouponID:   r.CouponID,
		CustomerID: r.CustomerID,
		CheckoutID: r.CheckoutID,
		Discount:   r.Discount,
		UsedAt:     r.At,
	}
	if c.PerCustomerLimit != nil {
		used, err := s.Repo.CountCustomerUsage(tx, r.CouponID, r.CustomerID)
		if err != nil {
			return err
		}
		if used >= *c.PerCustomerLimit {
			return apperr.Conflict(apperr.CodeCouponRace, "coupon already used by this customer").
				With("reason", CouponPerCustomerLimitReached)
		}
		// a concurrent redemption that counted the same usages claims the
		// same slot and fails on the unique index
		seq := used + 1
		u.Seq = &seq
	}
	err = s.Repo.CreateUsage(tx, u)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(apperr.CodeCouponRace, "coupon already used by this customer").
			With("reason", CouponPerCustomerLimitReached)
	}
	return err
}
