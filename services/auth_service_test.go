package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

func TestRegisterCustomerAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Auth.Register(ctx, RegisterRequest{Email: " Ada@Example.com ", Password: "s3cret-pass", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.Account.Email)
	assert.Equal(t, string(RoleCustomer), res.Account.Role)
	assert.Equal(t, res.Account.ID, res.Account.SubjectID)
	assert.NotEqual(t, "s3cret-pass", res.Account.Password)

	claims, err := utils.ParseToken(res.Token, testJWTSecret(e))
	require.NoError(t, err)
	p, err := PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, p.Role)
	assert.Equal(t, res.Account.ID, p.AccountID)
	assert.Equal(t, res.Account.ID, p.SubjectID)

	_, err = e.svc.Auth.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: "another-pass"})
	ae := requireCode(t, err, apperr.CodeValidation)
	assert.Equal(t, apperr.KindConflict, ae.Kind)

	login, err := e.svc.Auth.Login(ctx, "ADA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, login.Account.ID)

	_, err = e.svc.Auth.Login(ctx, "ada@example.com", "wrong-pass")
	requireCode(t, err, apperr.CodeUnauthorized)
	_, err = e.svc.Auth.Login(ctx, "nobody@example.com", "s3cret-pass")
	requireCode(t, err, apperr.CodeUnauthorized)

	me, err := e.svc.Auth.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.Name)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cases := map[string]RegisterRequest{
		"bad email":       {Email: "not-an-email", Password: "long-enough"},
		"short password":  {Email: "a@b.co", Password: "short"},
		"vendor sign-up":  {Email: "v@b.co", Password: "long-enough", Role: RoleVendor},
		"driver no info":  {Email: "d@b.co", Password: "long-enough", Role: RoleDriver},
		"driver no plate": {Email: "d2@b.co", Password: "long-enough", Role: RoleDriver, Driver: &DriverRegistration{VehicleType: "car"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.svc.Auth.Register(ctx, req)
			requireCode(t, err, apperr.CodeValidation)
		})
	}
	var n int64
	require.NoError(t, e.db.Model(&entity.Account{}).Count(&n).Error)
	assert.Zero(t, n, "failed sign-ups leave no account behind")
}

func TestRegisterDriverCreatesPendingDriver(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Auth.Register(context.Background(), RegisterRequest{
		Email: "rider@example.com", Password: "pedal-fast", Name: "Tunde", Role: RoleDriver,
		Driver: &DriverRegistration{VehicleType: "bike", LicenseNumber: "BK-9"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, res.Account.ID, res.Account.SubjectID)

	d := e.driver(res.Account.SubjectID)
	assert.Equal(t, "Tunde", d.Name)
	require.NotNil(t, d.AccountID)
	assert.Equal(t, res.Account.ID, *d.AccountID)
	assert.Equal(t, entity.VerificationPending, d.VerificationStatus)
}

func TestAdminCreatesSellerAccounts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.fx.Vendor("Login Shop", "")

	acc, err := e.svc.Auth.CreateAccount(ctx, adminP, AccountRequest{
		Email: "shop@example.com", Password: "vendor-pass", Role: RoleVendor, SubjectID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, v.ID, acc.SubjectID)

	res, err := e.svc.Auth.Login(ctx, "shop@example.com", "vendor-pass")
	require.NoError(t, err)
	claims, err := utils.ParseToken(res.Token, testJWTSecret(e))
	require.NoError(t, err)
	assert.Equal(t, string(RoleVendor), claims.Role)
	assert.Equal(t, v.ID, claims.SubjectID)

	_, err = e.svc.Auth.CreateAccount(ctx, adminP, AccountRequest{
		Email: "ghost@example.com", Password: "vendor-pass", Role: RoleChef, SubjectID: v.ID})
	requireCode(t, err, apperr.CodeNotFound)
	_, err = e.svc.Auth.CreateAccount(ctx, adminP, AccountRequest{
		Email: "cust@example.com", Password: "vendor-pass", Role: RoleCustomer})
	requireCode(t, err, apperr.CodeValidation)
	_, err = e.svc.Auth.CreateAccount(ctx, vendorP(v), AccountRequest{
		Email: "x@example.com", Password: "vendor-pass", Role: RoleAdmin})
	requireCode(t, err, apperr.CodeForbidden)

	admin, err := e.svc.Auth.CreateAccount(ctx, adminP, AccountRequest{
		Email: "ops@example.com", Password: "admin-pass", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, admin.ID, admin.SubjectID)
}

func TestPrincipalFromClaimsRejectsUnknownRole(t *testing.T) {
	_, err := PrincipalFromClaims(&utils.Claims{Role: "root"})
	requireCode(t, err, apperr.CodeUnauthorized)
}

func testJWTSecret(e *env) string { return e.app.Config.JWTSecret }
