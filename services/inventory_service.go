package services

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

// Reservation is a quantity of one stocked product.
type Reservation struct {
	ProductID uuid.UUID
	Quantity  int64
}

// InventoryLedger owns stock_quantity. Every write is a guarded UPDATE on
// the product's row, so concurrent reservations are linearizable per product.
type InventoryLedger struct {
	Repo  *repository.InventoryRepository
	Bus   events.Publisher
	Clock Clock
	Log   *zap.Logger
}

func NewInventoryLedger(app *AppContext) *InventoryLedger {
	return &InventoryLedger{
		Repo:  repository.NewInventoryRepository(app.DB),
		Bus:   app.publisher(),
		Clock: app.Clock,
		Log:   app.Log,
	}
}

// MergeReservations sums duplicate products and sorts by id so that two
// checkouts always lock rows in the same order.
func MergeReservations(rs []Reservation) []Reservation {
	byID := map[uuid.UUID]int64{}
	for _, r := range rs {
		byID[r.ProductID] += r.Quantity
	}
	out := make([]Reservation, 0, len(byID))
	for id, q := range byID {
		out = append(out, Reservation{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out
}

// Reserve takes every reservation or none. It must run inside tx: a failure
// is returned so the caller's rollback releases what was already taken.
func (l *InventoryLedger) Reserve(tx *gorm.DB, rs []Reservation) error {
	for _, r := range MergeReservations(rs) {
		if err := l.reserveOne(tx, r); err != nil {
			return err
		}
	}
	return nil
}

func (l *InventoryLedger) reserveOne(tx *gorm.DB, r Reservation) error {
	if r.Quantity < 1 {
		return apperr.Validationf("quantity for product %s must be at least 1", r.ProductID)
	}
	affected, err := l.Repo.DecrementGuard(tx, r.ProductID, r.Quantity)
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	it, err := l.Repo.Get(tx, r.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.InsufficientStock(r.ProductID.String(), 0)
	}
	if err != nil {
		return err
	}
	return apperr.InsufficientStock(r.ProductID.String(), it.StockQuantity)
}

// Release is the compensating increment (cancel, aborted checkout).
func (l *InventoryLedger) Release(tx *gorm.DB, rs []Reservation) error {
	for _, r := range MergeReservations(rs) {
		if _, err := l.Repo.Increment(tx, r.ProductID, r.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Commit runs after the reserving transaction committed. Quantities are
// already final; it only raises LowStockAlert.
func (l *InventoryLedger) Commit(ctx context.Context, db *gorm.DB, rs []Reservation) {
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx, l.Log)
	for _, r := range MergeReservations(rs) {
		it, err := l.Repo.Get(db.WithContext(ctx), r.ProductID)
		if err != nil {
			log.Warn("inventory_commit_lookup_failed", zap.String("product_id", r.ProductID.String()), zap.Error(err))
			continue
		}
		if it.StockQuantity > it.LowStockThreshold {
			continue
		}
		publishAll(ctx, l.Bus, l.Log, events.LowStockAlert{
			ProductID:     it.ProductID,
			VendorID:      it.VendorID,
			StockQuantity: it.StockQuantity,
			Threshold:     it.LowStockThreshold,
			OccurredAt:    l.Clock.Now(),
		})
	}
}
