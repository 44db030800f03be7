package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/types"
)

type fakeUserRepo struct {
	users map[string]*types.User
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return u, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*types.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func newTestService(t *testing.T, ttl time.Duration) (*Service, *types.User) {
	t.Helper()
	// MinCost keeps the test fast; production uses bcryptCost.
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &types.User{ID: 1, Email: "alice@example.com", PasswordHash: string(hash)}
	repo := &fakeUserRepo{users: map[string]*types.User{user.Email: user}}
	return NewService(ServiceConfig{UserRepo: repo, SessionTTL: ttl}), user
}

func assertAuthCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestLogin_Succeeds(t *testing.T) {
	svc, user := newTestService(t, time.Hour)

	token, err := svc.Login(context.Background(), user.Email, "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, user.Email, actor.Email)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, user := newTestService(t, time.Hour)

	_, err := svc.Login(context.Background(), user.Email, "wrong")
	assertAuthCode(t, err, types.ErrCodeAuthInvalidCreds)
}

func TestLogin_UnknownEmail_SameErrorAsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.Login(context.Background(), "nobody@example.com", "hunter2")
	assertAuthCode(t, err, types.ErrCodeAuthInvalidCreds)
}

func TestResolveToken_Unknown(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.ResolveToken(context.Background(), "not-a-token")
	assertAuthCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestResolveToken_Expired(t *testing.T) {
	svc, user := newTestService(t, time.Nanosecond)

	token, err := svc.Login(context.Background(), user.Email, "hunter2")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.ResolveToken(context.Background(), token)
	assertAuthCode(t, err, types.ErrCodeAuthTokenExpired)

	// The expired session was evicted; a second resolve sees it as unknown.
	_, err = svc.ResolveToken(context.Background(), token)
	assertAuthCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	svc, user := newTestService(t, time.Hour)

	token, err := svc.Login(context.Background(), user.Email, "hunter2")
	require.NoError(t, err)

	svc.Logout(context.Background(), token)

	_, err = svc.ResolveToken(context.Background(), token)
	assertAuthCode(t, err, types.ErrCodeAuthTokenInvalid)
}
