package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/models"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
	issuer       = "stockgame"
)

// Claims carried by both token kinds. Subject is the user id.
type Claims struct {
	Role  models.Role `json:"role"`
	Email string      `json:"email,omitempty"`
	Type  string      `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type signer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (s signer) sign(u *models.User, typ string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Role:  u.Role,
		Email: u.Email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        models.NewID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return tok, exp, nil
}

func (s signer) pair(u *models.User, now time.Time) (*TokenPair, time.Time, error) {
	access, accessExp, err := s.sign(u, tokenAccess, s.accessTTL, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	refresh, refreshExp, err := s.sign(u, tokenRefresh, s.refreshTTL, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, refreshExp, nil
}

func (s signer) parse(raw, typ string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindUnauthorized, "token expired")
		}
		return nil, apperr.ErrUnauthorized
	}
	if claims.Type != typ || claims.Subject == "" {
		return nil, apperr.ErrUnauthorized
	}
	return claims, nil
}

// hashToken is how refresh tokens are stored; the raw token never is.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
