// Package auth issues and checks the HS256 bearer tokens that identify share
// owners and administrators. Anonymous users need no token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Claims carries the registered claims plus the caller's identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   Role   `json:"role"`
}

func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

func GenerateToken(userID string, role Role, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID: userID,
		Role:   role,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and expiry. Expired tokens return
// common.ErrTokenExpired; every other failure common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
