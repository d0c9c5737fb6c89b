// Package sessions issues and verifies the signed session tokens used by the
// registry's web surface. Sessions identify a user; scoped access for cargo
// itself goes through registry tokens instead.
package sessions

import (
	"time"

	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the identity of the session user.
type Claims struct {
	jwt.RegisteredClaims
	UID   int64  `json:"uid"`
	Email string `json:"email"`
}

// GenerateToken mints an HS256 session token for the given user.
func GenerateToken(uid int64, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UID:   uid,
		Email: email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies a session token and returns the user it identifies.
func ParseToken(tokenString string, secretKey []byte) (uid int64, email string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return 0, "", err
	}

	if !token.Valid {
		return 0, "", common.ErrInvalidToken
	}

	return claims.UID, claims.Email, nil
}
