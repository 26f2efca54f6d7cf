package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/api/respond"
	"github.com/liliang-cn/ragmentor/internal/auth"
	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/service"
)

const (
	identityKey = "identity"
	userKey     = "user"
)

// Auth verifies the bearer credential and stores the caller identity
func Auth(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respond.Error(c, domain.ErrUnauthorized)
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debug("Credential rejected", zap.String("path", c.FullPath()), zap.Error(err))
			respond.Error(c, domain.ErrUnauthorized)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireUser resolves the verified identity to a directory user
func RequireUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			respond.Error(c, domain.ErrUnauthorized)
			return
		}

		user, err := users.Resolve(c.Request.Context(), identity)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole admits only users holding role; it runs after RequireUser
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFrom(c)
		if !ok {
			respond.Error(c, domain.ErrUnauthorized)
			return
		}
		if user.Role != role {
			respond.Error(c, fmt.Errorf("%w: %s role required", domain.ErrForbidden, role))
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

// UserFrom returns the user stored by RequireUser
func UserFrom(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
