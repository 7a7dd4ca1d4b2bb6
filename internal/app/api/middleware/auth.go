package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/response"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	// RoleBot is used by internal jobs such as an external scan trigger.
	RoleBot Role = "bot"
)

const roleKey = "role"

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the session service. Subject is the user ID.
type Claims struct {
	Role Role `json:"role"`
	jwt.StandardClaims
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: signing secret is empty", ErrInvalidToken)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}
	return claims, nil
}

// SignToken issues an HS256 token; used by scentctl and tests.
func SignToken(secret string, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// AuthMiddleware requires a bearer token carrying one of roles. The user ID is
// stored on gin.Context, the request context and the request logger.
func AuthMiddleware(secret string, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			return
		}
		if len(roles) > 0 && !lo.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeForbidden, "role not allowed"))
			return
		}

		c.Set(string(logctx.UserIDKey), claims.Subject)
		c.Set(roleKey, claims.Role)
		ctx := logctx.WithUserID(c.Request.Context(), claims.Subject)
		if l, ok := c.Get(string(logctx.LoggerKey)); ok {
			if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
				lg = lg.With("user_id", claims.Subject)
				c.Set(string(logctx.LoggerKey), lg)
				ctx = logctx.WithLogger(ctx, lg)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated subject set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(string(logctx.UserIDKey))
}
