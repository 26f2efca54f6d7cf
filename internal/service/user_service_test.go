package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

type memoryDirectory struct {
	users []*domain.User
}

func (m *memoryDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryDirectory) Create(_ context.Context, u *domain.User) error {
	u.ID = int64(len(m.users) + 1)
	if u.Role == "" {
		u.Role = domain.UserRoleUser
	}
	m.users = append(m.users, u)
	return nil
}

func (m *memoryDirectory) SetRole(_ context.Context, id int64, role string) error {
	for _, u := range m.users {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return domain.ErrNotFound
}

func TestResolveExistingUser(t *testing.T) {
	dir := &memoryDirectory{users: []*domain.User{{ID: 5, Email: "ana@example.com"}}}
	svc := NewUserService(dir, false, zap.NewNop())

	u, err := svc.Resolve(context.Background(), domain.Identity{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.ID)
}

func TestResolveUnknownUser(t *testing.T) {
	svc := NewUserService(&memoryDirectory{}, false, zap.NewNop())

	_, err := svc.Resolve(context.Background(), domain.Identity{Email: "eve@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Resolve(context.Background(), domain.Identity{Subject: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolveAutoProvisions(t *testing.T) {
	dir := &memoryDirectory{}
	svc := NewUserService(dir, true, zap.NewNop())

	u, err := svc.Resolve(context.Background(), domain.Identity{Email: "new@example.com", Name: "New", Picture: "https://pic"})
	require.NoError(t, err)
	assert.Equal(t, "New", u.Name)
	assert.Equal(t, domain.UserRoleUser, u.Role)
	assert.Equal(t, "https://pic", u.AvatarURL)
	assert.Len(t, dir.users, 1)

	again, err := svc.Resolve(context.Background(), domain.Identity{Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Len(t, dir.users, 1)
}

func TestResolvePromotesConfiguredAdmins(t *testing.T) {
	dir := &memoryDirectory{users: []*domain.User{
		{ID: 1, Email: "root@example.com", Role: domain.UserRoleUser},
		{ID: 2, Email: "ana@example.com", Role: domain.UserRoleUser},
	}}
	svc := NewUserService(dir, true, zap.NewNop()).WithAdmins([]string{" ROOT@example.com ", "boss@example.com"})
	ctx := context.Background()

	u, err := svc.Resolve(ctx, domain.Identity{Email: "root@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, u.Role)
	assert.Equal(t, domain.UserRoleAdmin, dir.users[0].Role)

	u, err = svc.Resolve(ctx, domain.Identity{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleUser, u.Role)

	u, err = svc.Resolve(ctx, domain.Identity{Email: "boss@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, u.Role)
}
