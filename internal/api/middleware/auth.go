package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/frostdev-ops/jobwatch/pkg/utils"
)

// ActorKey is the gin context key holding the acting user's name
const ActorKey = "actor"

// DefaultActor is recorded when authentication is disabled
const DefaultActor = "operator"

// AuthMiddleware validates JWT tokens (strict auth) and stores the actor
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.SendError(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			utils.SendError(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenParts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})

		if err != nil || !token.Valid {
			utils.SendError(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		actor := DefaultActor
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			actor = actorFromClaims(claims)
			c.Set("user_id", claims["user_id"])
			c.Set("username", claims["username"])
		}
		c.Set(ActorKey, actor)

		c.Next()
	}
}

// AnonymousActorMiddleware stands in for AuthMiddleware when auth is disabled
func AnonymousActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ActorKey, DefaultActor)
		c.Next()
	}
}

// Actor returns the acting user for the request
func Actor(c *gin.Context) string {
	if actor := c.GetString(ActorKey); actor != "" {
		return actor
	}
	return DefaultActor
}

func actorFromClaims(claims jwt.MapClaims) string {
	if username, ok := claims["username"].(string); ok && strings.TrimSpace(username) != "" {
		return username
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	return DefaultActor
}
