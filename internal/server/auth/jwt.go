// Package auth implements the token codec: signed JWT claim sets for access
// and refresh tokens. Access tokens are stateless and self-certifying;
// refresh tokens additionally key a persisted refresh session by their jti.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/server/models"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the claim set carried by both token kinds. Subject is the user
// id and ID (jti) the unique token id; TokenType distinguishes access from
// refresh so one kind can never be redeemed as the other.
type Claims struct {
	jwt.RegisteredClaims
	Email     string      `json:"email,omitempty"`
	Role      models.Role `json:"role"`
	TokenType string      `json:"token_type"`
}

// Codec signs and verifies claim sets with an HS256 secret bound to a fixed
// issuer and audience.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
}

func NewCodec(secret []byte, issuer, audience string) *Codec {
	return &Codec{secret: secret, issuer: issuer, audience: audience}
}

// Encode builds and signs a claim set for user with the given token type,
// unique token id and validity duration.
func (c *Codec) Encode(user *models.User, tokenType, jti string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode verifies signature, expiry, issuer and audience and returns the
// claims. Any verification failure is reported as common.ErrInvalidToken.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithAudience(c.audience))
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
