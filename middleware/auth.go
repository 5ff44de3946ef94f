package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/geopost/utils"
)

const (
	// ContextIdentityKey is the key used to store the authenticated Identity in Gin context.
	ContextIdentityKey = "identity"

	bearerPrefix = "Bearer "
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*utils.Claims, error)
}

// Identity is the authenticated caller, taken from the token alone.
type Identity struct {
	ID       uint
	Username string
}

// AuthRequired ensures the request carries a valid bearer token.
func AuthRequired(tokens TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			utils.Fail(ctx, utils.Unauthorized("authentication required"))
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if tokenString == "" {
			utils.Fail(ctx, utils.Unauthorized("authentication required"))
			ctx.Abort()
			return
		}

		claims, err := tokens.Verify(tokenString)
		if err != nil {
			if errors.Is(err, utils.ErrTokenExpired) {
				utils.Fail(ctx, utils.TokenExpired())
			} else {
				utils.Fail(ctx, utils.InvalidToken())
			}
			ctx.Abort()
			return
		}

		ctx.Set(ContextIdentityKey, Identity{ID: claims.UserID(), Username: claims.Username})
		ctx.Next()
	}
}

// CurrentIdentity returns the identity set by AuthRequired.
func CurrentIdentity(ctx *gin.Context) (Identity, bool) {
	v, ok := ctx.Get(ContextIdentityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
