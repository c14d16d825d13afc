package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type authUserRepoStub struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	created []*models.User
}

func newAuthUserRepoStub() *authUserRepoStub {
	return &authUserRepoStub{byEmail: make(map[string]*models.User), byID: make(map[string]*models.User)}
}

func (r *authUserRepoStub) add(user *models.User) {
	r.byEmail[user.Email] = user
	r.byID[user.ID] = user
}

func (r *authUserRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := r.byEmail[email]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authUserRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := r.byID[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authUserRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-created"
	}
	copy := *user
	r.created = append(r.created, &copy)
	r.add(&copy)
	return nil
}

func (r *authUserRepoStub) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if user, ok := r.byID[id]; ok {
		user.LastLogin = &at
	}
	return nil
}

func (r *authUserRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if user, ok := r.byID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

type applicationCreatorStub struct {
	created []*models.Application
}

func (r *applicationCreatorStub) Create(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	if app.ID == "" {
		app.ID = "app-created"
	}
	copy := *app
	r.created = append(r.created, &copy)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "enrollment-api-test"}
}

func hashPassword(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceRegisterCreatesAccountAndApplication(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	users := newAuthUserRepoStub()
	apps := &applicationCreatorStub{}
	effects := &effectsStub{}
	svc := NewAuthService(users, apps, effects, tx, nil, nil, testAuthConfig())

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Register(context.Background(), models.RegisterRequest{Email: "juan@test.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.Equal(t, "juan@test.com", result.User.Email)
	require.Equal(t, models.RoleStudent, result.User.Role)

	require.Len(t, users.created, 1)
	require.True(t, users.created[0].Active)
	require.Len(t, apps.created, 1)
	require.Equal(t, users.created[0].ID, apps.created[0].UserID)

	require.Len(t, effects.audits, 1)
	require.Equal(t, models.AuditAccountCreated, effects.audits[0].action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{ID: "user-1", Email: "juan@test.com"})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{Email: "juan@test.com", Password: "secret1"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterRejectsShortPassword(t *testing.T) {
	svc := NewAuthService(newAuthUserRepoStub(), &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{Email: "juan@test.com", Password: "abc"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "juan@test.com",
		PasswordHash: hashPassword(t, "secret1"),
		Role:         models.RoleStudent,
		Active:       true,
	})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	result, err := svc.Login(context.Background(), models.LoginRequest{Email: "juan@test.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotNil(t, users.byID["user-1"].LastLogin)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
	require.Equal(t, "enrollment-api-test", claims.Issuer)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "juan@test.com",
		PasswordHash: hashPassword(t, "secret1"),
		Active:       true,
	})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "juan@test.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{
		ID:           "user-1",
		Email:        "juan@test.com",
		PasswordHash: hashPassword(t, "secret1"),
		Active:       false,
	})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "juan@test.com", Password: "secret1"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{ID: "user-1", Email: "juan@test.com", PasswordHash: hashPassword(t, "secret1"), Active: true})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(users.byID["user-1"].PasswordHash), []byte("secret2")))
}

func TestAuthServiceChangePasswordWrongOldPassword(t *testing.T) {
	users := newAuthUserRepoStub()
	users.add(&models.User{ID: "user-1", Email: "juan@test.com", PasswordHash: hashPassword(t, "secret1"), Active: true})
	svc := NewAuthService(users, &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "secret2"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc := NewAuthService(newAuthUserRepoStub(), &applicationCreatorStub{}, &effectsStub{}, noopTxProvider{}, nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
