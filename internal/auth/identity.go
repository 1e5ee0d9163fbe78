package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityCookie is the signed cookie holding the opaque user id.
const (
	IdentityCookie = "attune_uid"
	cookieMaxAge   = 365 * 24 * time.Hour
)

// ContextUserKey is the gin context key the middleware sets.
const ContextUserKey = "userId"

// Claims carries the opaque per-browser user id. There are no accounts
// and no credentials: the id exists only to scope memory per user.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// GenerateToken signs a user id into a compact token.
func GenerateToken(secret, userID string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies a token and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// IdentityMiddleware resolves the opaque user identifier from a signed
// cookie, minting one on first contact. Every memory read/write
// downstream is scoped by this id.
func IdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(IdentityCookie); err == nil {
			if claims, err := ParseToken(secret, raw); err == nil {
				c.Set(ContextUserKey, claims.UserID)
				c.Next()
				return
			}
			// invalid or expired cookie: reissue below
		}

		userID := uuid.NewString()
		token, err := GenerateToken(secret, userID, cookieMaxAge)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to issue identity"}})
			return
		}
		c.SetCookie(IdentityCookie, token, int(cookieMaxAge.Seconds()), "/", "", false, true)
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// UserID returns the resolved user id for the request.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}
