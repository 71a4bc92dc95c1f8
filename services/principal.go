package services

import (
	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleChef     Role = "chef"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleChef, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller. SubjectID is the customer, vendor,
// chef or driver id the role acts for.
type Principal struct {
	Role      Role
	AccountID uuid.UUID
	SubjectID uuid.UUID
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (p Principal) IsSeller() bool { return p.Role == RoleVendor || p.Role == RoleChef }

// SellerKind maps a seller role onto the order's seller linkage.
func (p Principal) SellerKind() entity.SellerKind {
	if p.Role == RoleChef {
		return entity.SellerChef
	}
	return entity.SellerVendor
}

// OwnsAsSeller reports whether p is the vendor or chef of o.
func (p Principal) OwnsAsSeller(o *entity.Order) bool {
	switch p.Role {
	case RoleVendor:
		return o.VendorID != nil && *o.VendorID == p.SubjectID
	case RoleChef:
		return o.ChefID != nil && *o.ChefID == p.SubjectID
	}
	return false
}

// CanView is the read rule for a single order.
func (p Principal) CanView(o *entity.Order) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleCustomer:
		return o.CustomerID == p.SubjectID
	case RoleVendor, RoleChef:
		return p.OwnsAsSeller(o)
	case RoleDriver:
		return o.DriverID != nil && *o.DriverID == p.SubjectID
	}
	return false
}

func requireRole(p Principal, roles ...Role) error {
	if p.Role == RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("role " + string(p.Role) + " not permitted")
}
