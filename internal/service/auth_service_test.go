package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusops/nodues-api/internal/models"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type authRepoStub struct {
	user      *models.User
	lastLogin time.Time
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin = ts
	return nil
}

func authTestConfig() AuthConfig {
	return AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "nodues-api"}
}

func staffUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "librarian@univ.edu",
		PasswordHash: string(hash),
		FullName:     "Lata Iyer",
		Role:         models.RoleDepartment,
		Departments:  []string{"library"},
		Active:       true,
	}
}

func TestLoginIssuesTokenWithDepartments(t *testing.T) {
	repo := &authRepoStub{user: staffUser(t)}
	svc := NewAuthService(repo, nil, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@univ.edu",
		Password: "s3cret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, []string{"library"}, resp.User.Departments)
	require.False(t, repo.lastLogin.IsZero())

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleDepartment, claims.Role)
	require.True(t, claims.OwnsDepartment("library"))
	require.False(t, claims.OwnsDepartment("hostel"))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := &authRepoStub{user: staffUser(t)}
	svc := NewAuthService(repo, nil, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@univ.edu",
		Password: "wrong",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := staffUser(t)
	user.Active = false
	svc := NewAuthService(&authRepoStub{user: user}, nil, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@univ.edu",
		Password: "s3cret",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&authRepoStub{user: staffUser(t)}, nil, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@univ.edu",
		Password: "s3cret",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)

	other := NewAuthService(&authRepoStub{}, nil, nil, nil, AuthConfig{TokenSecret: "different", TokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
