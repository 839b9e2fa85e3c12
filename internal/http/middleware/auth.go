package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/summithq/summithq-security/internal/requestmeta"
)

const adminRole = "admin"

// AdminClaims are the claims the identity provider puts in back-office
// tokens. This service only verifies; it never issues.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates Authorization headers on the admin surface.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// RequireAdmin ensures the request carries a valid admin bearer token and
// records the actor for auditing.
func (m *Auth) RequireAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	if claims.Role != adminRole {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Administrator role required."})
		return
	}

	if actorID, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
		c.Request = c.Request.WithContext(requestmeta.WithActor(c.Request.Context(), actorID))
	}
	c.Next()
}
