package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/crewroom/crewroom/pkg/models"
)

const userIDContextKey = "crewroom.userID"

// TokenIssuer signs and validates the HS256 access tokens used by the API.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID   uint   `json:"uid"`
	Username string `json:"username"`
}

// Issue creates a signed token for the given user.
func (t *TokenIssuer) Issue(user *models.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(t.ttl)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   user.ID,
		Username: user.Username,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded user id.
func (t *TokenIssuer) Parse(token string) (uint, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &accessClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !parsed.Valid || claims.UserID == 0 {
		return 0, errors.New("invalid token")
	}
	return claims.UserID, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware rejects requests without a valid bearer token. Websocket
// clients can't set headers, so a token query parameter is accepted too.
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(strings.TrimSpace(c.GetHeader("Authorization")))
		if !ok {
			if q := c.Query("token"); q != "" {
				token, ok = q, true
			}
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Response{Code: 401, Message: "Authentication required"})
			return
		}
		userID, err := issuer.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Response{Code: 401, Message: "Invalid or expired token"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's id set by AuthMiddleware.
func CurrentUserID(c *gin.Context) uint {
	if v, ok := c.Get(userIDContextKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
