package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/repository"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

// AuthService owns accounts and token issuance.
type AuthService struct {
	DB        *gorm.DB
	Repo      *repository.AccountRepository
	Drivers   *DriverService
	Catalog   Catalog
	JWTSecret string
	JWTTTL    time.Duration
	Log       *zap.Logger
}

func NewAuthService(app *AppContext, drivers *DriverService) *AuthService {
	return &AuthService{
		DB:        app.DB,
		Repo:      repository.NewAccountRepository(app.DB),
		Drivers:   drivers,
		Catalog:   app.Catalog,
		JWTSecret: app.Config.JWTSecret,
		JWTTTL:    app.Config.JWTTTL,
		Log:       app.Log,
	}
}

type RegisterRequest struct {
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Name     string              `json:"name"`
	Role     Role                `json:"role"`
	Driver   *DriverRegistration `json:"driver,omitempty"`
}

// AccountRequest is the admin form for seller and admin accounts.
type AccountRequest struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	SubjectID uuid.UUID `json:"subject_id"`
}

type AuthResult struct {
	Token   string          `json:"token"`
	Account *entity.Account `json:"account"`
}

const minPasswordLen = 8

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("email is not valid")
	}
	return email, nil
}

func hashPassword(pw string) (string, error) {
	if len(pw) < minPasswordLen {
		return "", apperr.Validationf("password must be at least %d characters", minPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return string(hashed), nil
}

// Register is self sign-up for customers and drivers. A driver account
// also creates its pending driver record.
func (s *AuthService) Register(ctx context.Context, in RegisterRequest) (*AuthResult, error) {
	if in.Role == "" {
		in.Role = RoleCustomer
	}
	if in.Role != RoleCustomer && in.Role != RoleDriver {
		return nil, apperr.Validation("only customer and driver accounts can self-register")
	}
	if in.Role == RoleDriver && in.Driver == nil {
		return nil, apperr.Validation("driver details are required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hashed, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	acc := &entity.Account{Email: email, Password: hashed, Name: strings.TrimSpace(in.Name), Role: string(in.Role)}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.create(tx, acc); err != nil {
			return err
		}
		subject := acc.ID
		if in.Role == RoleDriver {
			if in.Driver.Name == "" {
				in.Driver.Name = acc.Name
			}
			d, err := s.Drivers.register(tx, &acc.ID, *in.Driver)
			if err != nil {
				return err
			}
			subject = d.ID
		}
		acc.SubjectID = subject
		return s.Repo.SetSubject(tx, acc.ID, subject)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("account_registered",
		zap.String("account_id", acc.ID.String()), zap.String("role", acc.Role))
	return s.issue(acc)
}

// CreateAccount lets an admin open vendor, chef or admin logins. Seller
// accounts must point at an existing vendor or chef.
func (s *AuthService) CreateAccount(ctx context.Context, p Principal, in AccountRequest) (*entity.Account, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin only")
	}
	if !in.Role.Valid() {
		return nil, apperr.Validationf("unknown role %q", in.Role)
	}
	switch in.Role {
	case RoleVendor, RoleChef:
		kind := entity.SellerVendor
		if in.Role == RoleChef {
			kind = entity.SellerChef
		}
		if _, err := s.Catalog.Seller(ctx, kind, in.SubjectID); err != nil {
			return nil, err
		}
	case RoleCustomer, RoleDriver:
		return nil, apperr.Validation("customer and driver accounts sign up through /auth/register")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hashed, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	acc := &entity.Account{
		Email: email, Password: hashed, Name: strings.TrimSpace(in.Name), Role: string(in.Role), SubjectID: in.SubjectID,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.create(tx, acc); err != nil {
			return err
		}
		if in.Role == RoleAdmin {
			acc.SubjectID = acc.ID
			return s.Repo.SetSubject(tx, acc.ID, acc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.Log).Info("account_created",
		zap.String("account_id", acc.ID.String()), zap.String("role", acc.Role))
	return acc, nil
}

func (s *AuthService) create(tx *gorm.DB, acc *entity.Account) error {
	err := s.Repo.Create(tx, acc)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(apperr.CodeValidation, "email already registered")
	}
	return err
}

// Login checks the password and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acc, err := s.Repo.FindByEmail(s.DB.WithContext(ctx), email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return s.issue(acc)
}

func (s *AuthService) Me(ctx context.Context, p Principal) (*entity.Account, error) {
	acc, err := s.Repo.FindByID(s.DB.WithContext(ctx), p.AccountID)
	if err != nil {
		return nil, notFoundOr(err, "account")
	}
	return acc, nil
}

func (s *AuthService) issue(acc *entity.Account) (*AuthResult, error) {
	token, err := utils.GenerateToken(acc.ID, acc.SubjectID, acc.Role, s.JWTSecret, s.JWTTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &AuthResult{Token: token, Account: acc}, nil
}

// PrincipalFromClaims turns verified token claims into the engine principal.
func PrincipalFromClaims(c *utils.Claims) (Principal, error) {
	role := Role(c.Role)
	if !role.Valid() {
		return Principal{}, apperr.Unauthorized("token carries an unknown role")
	}
	accountID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Principal{}, apperr.Unauthorized("token subject is not an account id")
	}
	return Principal{Role: role, AccountID: accountID, SubjectID: c.SubjectID}, nil
}
