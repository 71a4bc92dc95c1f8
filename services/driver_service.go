package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
)

// DriverService is the driver registry. Counters and ratings are not
// written here; the dispatcher owns them.
type DriverService struct {
	DB         *gorm.DB
	Repo       *repository.DriverRepository
	Deliveries *repository.DeliveryRepository
	Clock      Clock
	Log        *zap.Logger
	Metrics    *metrics.Metrics
}

func NewDriverService(app *AppContext) *DriverService {
	return &DriverService{
		DB:         app.DB,
		Repo:       repository.NewDriverRepository(app.DB),
		Deliveries: repository.NewDeliveryRepository(app.DB),
		Clock:      app.Clock,
		Log:        app.Log,
		Metrics:    app.Metrics,
	}
}

type DriverRegistration struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	VehicleType   string `json:"vehicle_type"`
	VehiclePlate  string `json:"vehicle_plate"`
	LicenseNumber string `json:"license_number"`
}

func (r DriverRegistration) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("name is required")
	}
	if strings.TrimSpace(r.VehicleType) == "" {
		return apperr.Validation("vehicle_type is required")
	}
	if strings.TrimSpace(r.LicenseNumber) == "" {
		return apperr.Validation("license_number is required")
	}
	return nil
}

// Register creates a pending, unavailable driver.
func (s *DriverService) Register(ctx context.Context, accountID *uuid.UUID, in DriverRegistration) (*entity.Driver, error) {
	var d *entity.Driver
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = s.register(tx, accountID, in)
		return err
	})
	return d, err
}

// register runs inside the caller's transaction (account sign-up).
func (s *DriverService) register(tx *gorm.DB, accountID *uuid.UUID, in DriverRegistration) (*entity.Driver, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	d := &entity.Driver{
		AccountID:          accountID,
		Name:               strings.TrimSpace(in.Name),
		Phone:              strings.TrimSpace(in.Phone),
		VehicleType:        strings.TrimSpace(in.VehicleType),
		VehiclePlate:       strings.TrimSpace(in.VehiclePlate),
		LicenseNumber:      strings.TrimSpace(in.LicenseNumber),
		VerificationStatus: entity.VerificationPending,
		IsActive:           true,
	}
	if err := s.Repo.Create(tx, d); err != nil {
		return nil, err
	}
	s.Log.Info("driver_registered", zap.String("driver_id", d.ID.String()))
	return d, nil
}

// Get is open to the driver itself and admins.
func (s *DriverService) Get(ctx context.Context, p Principal, id uuid.UUID) (*entity.Driver, error) {
	if !p.IsAdmin() && !(p.Role == RoleDriver && p.SubjectID == id) {
		return nil, apperr.Forbidden("driver profile is private")
	}
	d, err := s.Repo.GetByID(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, notFoundOr(err, "driver")
	}
	return d, nil
}

func (s *DriverService) List(ctx context.Context, p Principal, status entity.VerificationStatus, skip, limit int) (*Page[entity.Driver], error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin only")
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Validationf("unknown verification status %q", status)
	}
	skip, limit = NormalizePage(skip, limit)
	items, total, err := s.Repo.List(s.DB.WithContext(ctx), status, skip, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Driver{}
	}
	return &Page[entity.Driver]{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

// SetAvailability toggles the offer feed. Going offline is refused while an
// active delivery is held; going online needs an approved, active driver.
func (s *DriverService) SetAvailability(ctx context.Context, p Principal, available bool) (*entity.Driver, error) {
	if p.Role != RoleDriver {
		return nil, apperr.Forbidden("driver only")
	}
	var out *entity.Driver
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.Repo.GetByID(tx, p.SubjectID)
		if err != nil {
			return notFoundOr(err, "driver")
		}
		if available {
			if !d.IsActive {
				return apperr.DriverNotEligible("inactive")
			}
			if d.VerificationStatus != entity.VerificationApproved {
				return apperr.DriverNotEligible("not_approved")
			}
		} else {
			busy, err := s.Deliveries.HasActiveForDriver(tx, d.ID)
			if err != nil {
				return err
			}
			if busy {
				return apperr.DriverBusy().With("hint", "finish or cancel the active delivery first")
			}
		}
		if err := s.Repo.SetAvailability(tx, d.ID, available); err != nil {
			return err
		}
		d.IsAvailable = available
		out = d
		return nil
	})
	s.Metrics.UseCase("driver_availability", outcome(err))
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("driver_availability",
		zap.String("driver_id", out.ID.String()), zap.Bool("available", available))
	return out, nil
}

// UpdateLocation records the driver's own position outside any delivery.
func (s *DriverService) UpdateLocation(ctx context.Context, p Principal, at LatLng) (*entity.Driver, error) {
	if p.Role != RoleDriver {
		return nil, apperr.Forbidden("driver only")
	}
	if !at.Valid() {
		return nil, apperr.Validation("lat/lng out of range")
	}
	db := s.DB.WithContext(ctx)
	if err := s.Repo.UpdateLocation(db, p.SubjectID, at.Lat, at.Lng, s.Clock.Now()); err != nil {
		return nil, err
	}
	d, err := s.Repo.GetByID(db, p.SubjectID)
	if err != nil {
		return nil, notFoundOr(err, "driver")
	}
	return d, nil
}

// Verify is the external approval step.
func (s *DriverService) Verify(ctx context.Context, p Principal, id uuid.UUID, status entity.VerificationStatus, notes string) (*entity.Driver, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin only")
	}
	if !status.Valid() {
		return nil, apperr.Validationf("unknown verification status %q", status)
	}
	var out *entity.Driver
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.Repo.SetVerification(tx, id, status, notes, s.Clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.NotFound("driver")
		}
		if status != entity.VerificationApproved {
			// a rejected driver leaves the offer feed
			if err := s.Repo.SetAvailability(tx, id, false); err != nil {
				return err
			}
		}
		out, err = s.Repo.GetByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("driver_verified",
		zap.String("driver_id", id.String()), zap.String("status", string(status)))
	return out, nil
}
