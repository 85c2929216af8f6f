package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comicforge-api/internal/config"
	"comicforge-api/internal/domain/entity"
	"comicforge-api/pkg/errors"
	"comicforge-api/pkg/utils"
)

type fakeUserRepo struct {
	byID    map[string]*entity.User
	byEmail map[string]*entity.User
	touched []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    map[string]*entity.User{},
		byEmail: map[string]*entity.User{},
	}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.byID[id], nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.byEmail[email], nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *entity.User) error {
	r.byID[user.ID] = user
	return nil
}

func (r *fakeUserRepo) TouchLastLogin(ctx context.Context, id string) error {
	r.touched = append(r.touched, id)
	return nil
}

func newTestService(repo *fakeUserRepo) *Service {
	jwt := utils.NewJWTManager("test-secret", "comicforge")
	cfg := &config.JWTConfig{
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
	return NewService(repo, jwt, cfg)
}

func TestRegisterIssuesTokens(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	user, pair, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, entity.UserRoleCreator, user.Role)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	// 密码不落明文
	assert.NotEqual(t, "hunter2-long", user.PasswordHash)
	assert.True(t, user.CheckPassword("hunter2-long"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, _, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada II")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.AsAppError(err).Code)
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	registered, _, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)

	user, pair, err := svc.Login(context.Background(), "ada@example.com", "hunter2-long")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, []string{registered.ID}, repo.touched)
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, _, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)

	_, _, errWrong := svc.Login(context.Background(), "ada@example.com", "nope-nope-nope")
	_, _, errUnknown := svc.Login(context.Background(), "ghost@example.com", "hunter2-long")

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	// 两种失败对外不可区分
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestRefreshRotatesPair(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	user, pair, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)

	fresh, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)

	jwt := utils.NewJWTManager("test-secret", "comicforge")
	claims, err := jwt.ParseToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "access", claims.Type)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, pair, err := svc.Register(context.Background(), "ada@example.com", "hunter2-long", "Ada")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc := newTestService(newFakeUserRepo())

	_, err := svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)
}
