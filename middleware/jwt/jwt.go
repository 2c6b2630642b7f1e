package jwt

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrTokenNotYetValid   = errors.New("token not yet valid")
	ErrRefreshWindowGone  = errors.New("token expired beyond refresh window")
	ErrRefreshNotEligible = errors.New("token not yet eligible for refresh")
)

// Identity is the caller information carried by a session token.
type Identity struct {
	MemberID      string
	Username      string
	Discriminator string
	Email         string
}

// Claims JWT 声明
type Claims struct {
	MemberID      string `json:"member_id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Email         string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		MemberID:      c.MemberID,
		Username:      c.Username,
		Discriminator: c.Discriminator,
		Email:         c.Email,
	}
}

type TokenManager struct {
	secret     []byte
	expireDur  time.Duration
	refreshDur time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, expireHours, refreshHours int) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expireDur:  time.Duration(expireHours) * time.Hour,
		refreshDur: time.Duration(refreshHours) * time.Hour,
		now:        time.Now,
	}
}

func (tm *TokenManager) GenerateToken(id Identity) (string, error) {
	now := tm.now()
	claims := Claims{
		MemberID:      id.MemberID,
		Username:      id.Username,
		Discriminator: id.Discriminator,
		Email:         id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.MemberID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expireDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return tm.secret, nil
}

func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc, jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.MemberID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshToken issues a new token when the given one expires within the
// refresh window, or expired less than a refresh window ago.
func (tm *TokenManager) RefreshToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}

	now := tm.now()
	expiry := claims.ExpiresAt.Time
	if now.After(expiry) {
		if now.Sub(expiry) > tm.refreshDur {
			return "", ErrRefreshWindowGone
		}
	} else if expiry.Sub(now) > tm.refreshDur {
		return "", ErrRefreshNotEligible
	}
	return tm.GenerateToken(claims.Identity())
}
