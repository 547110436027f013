// Package auth implements the token codec: signing and verification of the
// two JWT kinds the session flow uses. Access tokens are self-contained user
// claims; refresh tokens carry only a session reference. Both kinds share the
// same HS256 secret and differ in claim shape and lifetime.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
)

// Token kinds. The kind claim makes the two shapes mutually unacceptable:
// a refresh token is never valid where an access token is expected, and vice
// versa, even though both carry a valid signature.
const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// AccessClaims are the self-contained user claims carried by an access token.
// Verifying them needs no database lookup, which also means they can go stale
// between issuance and expiry.
type AccessClaims struct {
	jwt.RegisteredClaims
	Kind         string `json:"kind"`
	SessionToken string `json:"sessionToken"`
	UserID       int64  `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}

// RefreshClaims reference a session row; nothing else in them is trusted.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Kind         string `json:"kind"`
	SessionToken string `json:"sessionToken"`
}

// SignAccessToken signs an access token for user, bound to sessionToken,
// expiring validityDuration from now.
func SignAccessToken(user *models.User, sessionToken string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Kind:         kindAccess,
		SessionToken: sessionToken,
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
	})
	return token.SignedString(secretKey)
}

// SignRefreshToken signs a refresh token referencing sessionToken, expiring
// validityDuration from now.
func SignRefreshToken(sessionToken string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Kind:         kindRefresh,
		SessionToken: sessionToken,
	})
	return token.SignedString(secretKey)
}

// ParseAccessToken verifies signature, expiry (evaluated against the clock at
// verify time) and access-claim shape. Any failure yields common.ErrInvalidToken.
func ParseAccessToken(tokenString string, secretKey []byte) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Kind != kindAccess || claims.SessionToken == "" || claims.UserID == 0 || claims.Email == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ParseRefreshToken verifies signature, expiry and refresh-claim shape.
// Any failure yields common.ErrInvalidToken.
func ParseRefreshToken(tokenString string, secretKey []byte) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Kind != kindRefresh || claims.SessionToken == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return common.ErrInvalidToken
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
