// Package auth verifies bearer tokens and resolves them to stored users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

// Verifier checks HS256 tokens whose sub claim is the user id, then looks the
// user up through the store, so a token for a deleted user does not pass.
type Verifier struct {
	secret []byte
	users  core.UserStore
}

func NewVerifier(secret string, users core.UserStore) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

func (v *Verifier) Verify(ctx context.Context, token string) (domain.User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("parse token: %w", err)
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return domain.User{}, errors.New("token has no sub")
	}
	user, err := v.users.GetUser(ctx, uid)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve user %s: %w", uid, err)
	}
	return user, nil
}

// Sign issues a token for uid. Used by tooling and tests; the production
// issuer lives in the account service.
func (v *Verifier) Sign(uid string, ttl time.Duration) (string, error) {
	if uid == "" {
		return "", errors.New("empty uid")
	}
	claims := jwt.MapClaims{
		"sub": uid,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
