// Copyright 2026 The TaskFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/id"
)

// TokenService issues and verifies HS256 access tokens. Every token's jti
// is persisted; verification requires the row to still exist, so revocation
// is immediate and server-side.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	repo   TokenRepository
}

// NewTokenService creates a token service.
func NewTokenService(secret []byte, issuer string, ttl time.Duration, repo TokenRepository) *TokenService {
	return &TokenService{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		repo:   repo,
	}
}

// Issue mints a signed token for the principal and records its jti.
func (s *TokenService) Issue(ctx context.Context, principal authz.Principal) (string, error) {
	now := time.Now()
	jti := id.NewUUIDv7()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   principal.ID,
		"jti":   jti,
		"typ":   string(principal.Type),
		"guard": string(principal.Guard),
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.repo.Create(ctx, &AccessToken{
		ID:        jti,
		Principal: principal.PrincipalRef,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and the jti row, returning the principal
// the token was issued to.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (authz.Principal, error) {
	var claims jwt.MapClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return authz.Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	typ, _ := claims["typ"].(string)
	guard, _ := claims["guard"].(string)
	if jti == "" || sub == "" {
		return authz.Principal{}, ErrTokenInvalid
	}

	stored, err := s.repo.Get(ctx, jti)
	if err != nil {
		return authz.Principal{}, ErrTokenInvalid
	}
	if stored.Principal.ID != sub || string(stored.Principal.Type) != typ {
		return authz.Principal{}, ErrTokenInvalid
	}
	if time.Now().After(stored.ExpiresAt) {
		return authz.Principal{}, ErrTokenInvalid
	}

	return authz.Principal{
		PrincipalRef: stored.Principal,
		Guard:        authz.Guard(guard),
	}, nil
}

// Revoke invalidates one token by its jti.
func (s *TokenService) Revoke(ctx context.Context, jti string) error {
	return s.repo.Delete(ctx, jti)
}

// RevokeAll invalidates every token held by a principal.
func (s *TokenService) RevokeAll(ctx context.Context, principal authz.PrincipalRef) error {
	return s.repo.DeleteByPrincipal(ctx, principal)
}

// JTI extracts the jti claim from a verified token string. Used at logout,
// where the token has already passed Verify.
func (s *TokenService) JTI(tokenString string) (string, error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return "", ErrTokenInvalid
	}
	return jti, nil
}
