package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// UserDirectory looks users up by email
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	SetRole(ctx context.Context, id int64, role string) error
}

// UserService maps verified identities onto directory users
type UserService struct {
	repo          UserDirectory
	autoProvision bool
	admins        map[string]struct{}
	logger        *zap.Logger
}

// NewUserService creates a new user service. With autoProvision, unknown
// identities are added to the directory instead of being rejected.
func NewUserService(repo UserDirectory, autoProvision bool, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, autoProvision: autoProvision, logger: logger}
}

// WithAdmins names the emails that hold the admin role. Listed users are
// promoted the next time they are resolved.
func (s *UserService) WithAdmins(emails []string) *UserService {
	s.admins = make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			s.admins[e] = struct{}{}
		}
	}
	return s
}

// Resolve returns the user for id
func (s *UserService) Resolve(ctx context.Context, id domain.Identity) (*domain.User, error) {
	if id.Email == "" {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.repo.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user != nil {
		return s.promote(ctx, user)
	}
	if !s.autoProvision {
		return nil, fmt.Errorf("%w: no user for %s", domain.ErrNotFound, id.Email)
	}

	name := id.Name
	if name == "" {
		name = id.Email
	}
	user = &domain.User{Name: name, Email: id.Email, AvatarURL: id.Picture, Role: domain.UserRoleUser}
	if s.isAdmin(user.Email) {
		user.Role = domain.UserRoleAdmin
	}
	err = s.repo.Create(ctx, user)
	if errors.Is(err, domain.ErrConflict) {
		// created concurrently by another request
		if user, err = s.repo.GetByEmail(ctx, id.Email); err != nil || user == nil {
			return nil, fmt.Errorf("look up user: %w", err)
		}
		return s.promote(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}

	s.logger.Info("User provisioned", zap.Int64("user_id", user.ID), zap.String("email", user.Email), zap.String("role", user.Role))
	return user, nil
}

func (s *UserService) isAdmin(email string) bool {
	_, ok := s.admins[strings.ToLower(email)]
	return ok
}

func (s *UserService) promote(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.Role == domain.UserRoleAdmin || !s.isAdmin(user.Email) {
		return user, nil
	}
	if err := s.repo.SetRole(ctx, user.ID, domain.UserRoleAdmin); err != nil {
		return nil, fmt.Errorf("promote user: %w", err)
	}
	user.Role = domain.UserRoleAdmin
	s.logger.Info("User promoted to admin", zap.Int64("user_id", user.ID))
	return user, nil
}
