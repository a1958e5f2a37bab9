package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/auth"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
)

const ContextPrincipal = "principal"

type AuthMiddleware struct {
	verifier auth.Verifier
}

func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores the principal in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, errors.Unauthorized(nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abort(c, errors.Unauthorized(nil))
			return
		}

		p, err := m.verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			abort(c, errors.Unauthorized(err))
			return
		}

		c.Set(ContextPrincipal, p)
		c.Next()
	}
}

// RequireAdmin rejects principals without the platform admin flag.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || !p.Admin {
			abort(c, errors.InsufficientAuthority("platform admin required"))
			return
		}
		c.Next()
	}
}

// Principal returns the verified caller, nil before Authenticate ran.
func Principal(c *gin.Context) *model.Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

// abort hands err to ErrorHandler and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
