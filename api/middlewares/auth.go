package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/tool"
)

const claimsKey = "codesync.claims"

// Authenticate validates the bearer token. With enforce set (or when the
// server requires auth) a missing or bad token aborts with 401; otherwise
// the request proceeds anonymously.
func Authenticate(a *auth.Auth, enforce bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		required := enforce || a.Required()
		token := auth.ExtractToken(c.GetHeader("Authorization"))
		if token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, tool.FastReturnError("Unauthorized"))
				return
			}
			c.Next()
			return
		}
		claims, err := a.Validate(token)
		if err != nil {
			if required {
				tool.DefaultLogger.Debugf("[Auth] rejected %s %s: %v", c.Request.Method, c.FullPath(), err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, tool.FastReturnError("Unauthorized"))
				return
			}
			c.Next()
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Claims returns the validated token claims, if any.
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
