package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims identify the device a token was issued to.
type DeviceClaims struct {
	Device string `json:"device"`
	jwt.RegisteredClaims
}

// MintToken signs an HS256 token for device, valid for ttl from now.
func MintToken(secret []byte, device string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if device == "" {
		return "", errors.New("device is required")
	}
	claims := DeviceClaims{
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   device,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies an HS256 device token.
func ParseToken(secret []byte, token string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Device == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// authenticate rejects requests without a valid device token, and requests
// whose X-Device-ID names a different device than the token.
func (s *Server) authenticate(c *gin.Context) {
	token, err := bearer(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("invalid token: %v", err)})
		return
	}
	if id := c.GetHeader("X-Device-ID"); id != "" && id != claims.Device {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token was issued to another device"})
		return
	}
	c.Set("device", claims.Device)
	c.Next()
}
