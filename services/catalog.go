package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

type SellerInfo struct {
	Kind entity.SellerKind
	ID   uuid.UUID
	Name string
	// CommissionRate is nil when the seller has no negotiated rate.
	CommissionRate *decimal.Decimal
	Location       *LatLng
	Active         bool
}

// ItemSnapshot is the catalog view copied onto an order line.
type ItemSnapshot struct {
	ID         uuid.UUID
	SellerKind entity.SellerKind
	SellerID   uuid.UUID
	Name       string
	UnitPrice  money.Cents
	Available  bool
	// Stocked items go through the inventory ledger (vendor products).
	Stocked bool
}

type AddressInfo struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Location   *LatLng
}

// Catalog is the read-only lookup port over stores, chefs and their items.
type Catalog interface {
	Seller(ctx context.Context, kind entity.SellerKind, id uuid.UUID) (*SellerInfo, error)
	Item(ctx context.Context, kind entity.SellerKind, id uuid.UUID) (*ItemSnapshot, error)
	Address(ctx context.Context, id uuid.UUID) (*AddressInfo, error)
}

type GormCatalog struct {
	DB   *gorm.DB
	Repo *repository.CatalogRepository
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{DB: db, Repo: repository.NewCatalogRepository(db)}
}

func (c *GormCatalog) Seller(ctx context.Context, kind entity.SellerKind, id uuid.UUID) (*SellerInfo, error) {
	db := c.DB.WithContext(ctx)
	switch kind {
	case entity.SellerVendor:
		v, err := c.Repo.GetVendor(db, id)
		if err != nil {
			return nil, notFoundOr(err, "vendor")
		}
		return &SellerInfo{Kind: kind, ID: v.ID, Name: v.Name, CommissionRate: nullRate(v.CommissionRate),
			Location: latLng(v.Lat, v.Lng), Active: v.IsActive}, nil
	case entity.SellerChef:
		ch, err := c.Repo.GetChef(db, id)
		if err != nil {
			return nil, notFoundOr(err, "chef")
		}
		return &SellerInfo{Kind: kind, ID: ch.ID, Name: ch.Name, CommissionRate: nullRate(ch.CommissionRate),
			Location: latLng(ch.Lat, ch.Lng), Active: ch.IsActive}, nil
	}
	return nil, apperr.Validationf("unknown seller kind %q", kind)
}

func (c *GormCatalog) Item(ctx context.Context, kind entity.SellerKind, id uuid.UUID) (*ItemSnapshot, error) {
	db := c.DB.WithContext(ctx)
	switch kind {
	case entity.SellerVendor:
		p, err := c.Repo.GetProduct(db, id)
		if err != nil {
			return nil, notFoundOr(err, "product")
		}
		return &ItemSnapshot{ID: p.ID, SellerKind: kind, SellerID: p.VendorID, Name: p.Name,
			UnitPrice: p.Price, Available: p.IsActive, Stocked: true}, nil
	case entity.SellerChef:
		cu, err := c.Repo.GetCuisine(db, id)
		if err != nil {
			return nil, notFoundOr(err, "cuisine")
		}
		return &ItemSnapshot{ID: cu.ID, SellerKind: kind, SellerID: cu.ChefID, Name: cu.Name,
			UnitPrice: cu.Price, Available: cu.IsAvailable}, nil
	}
	return nil, apperr.Validationf("unknown seller kind %q", kind)
}

func (c *GormCatalog) Address(ctx context.Context, id uuid.UUID) (*AddressInfo, error) {
	a, err := c.Repo.GetAddress(c.DB.WithContext(ctx), id)
	if err != nil {
		return nil, notFoundOr(err, "address")
	}
	return &AddressInfo{ID: a.ID, CustomerID: a.CustomerID, Location: latLng(a.Lat, a.Lng)}, nil
}

func nullRate(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func latLng(lat, lng *float64) *LatLng {
	if lat == nil || lng == nil {
		return nil
	}
	return &LatLng{Lat: *lat, Lng: *lng}
}

// notFoundOr maps gorm's missing-row error to a typed NotFound.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
