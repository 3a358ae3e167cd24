// Package auth issues and validates bearer tokens for REST and STOMP clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/store"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

const (
	issuer          = "codesync"
	defaultTokenTTL = 10 * time.Hour
)

// Claims holds JWT token claims. Subject carries the username as well.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Auth struct {
	users    store.UserStore
	secret   []byte
	ttl      time.Duration
	required bool
	// revoked token hashes; entries outlive the tokens they revoke
	revoked *ttlworker.Cache[string, bool]
}

// New creates an Auth. An empty secret is replaced by a random one, which
// invalidates every token on restart.
func New(users store.UserStore, cfg types.AuthConfig) *Auth {
	secret := cfg.JWTSecret
	if secret == "" {
		tool.DefaultLogger.Warnf("[Auth] no jwtSecret configured, using a random secret; tokens will not survive a restart")
		secret = tool.GenerateSecret()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Auth{
		users:    users,
		secret:   []byte(secret),
		ttl:      ttl,
		required: cfg.Required,
		revoked:  ttlworker.NewCache[string, bool](ttl),
	}
}

// Required reports whether clients must present a valid token.
func (a *Auth) Required() bool {
	return a.required
}

// Register creates an account with a bcrypt password hash.
func (a *Auth) Register(ctx context.Context, req types.AuthRequest) (types.UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return types.UserResponse{}, fmt.Errorf("username and password required: %w", types.ErrBadRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.UserResponse{}, fmt.Errorf("hash password: %w", err)
	}
	u := types.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return types.UserResponse{}, err
	}
	tool.DefaultLogger.Infof("[Auth] registered user %s", username)
	return types.UserResponse{Username: u.Username, Email: u.Email}, nil
}

// Login checks the password and returns a signed token.
func (a *Auth) Login(ctx context.Context, username, password string) (types.AuthResponse, error) {
	u, err := a.users.GetUser(ctx, strings.TrimSpace(username))
	if errors.Is(err, types.ErrNotFound) {
		metrics.RecordAuthAttempt(false)
		tool.DefaultLogger.Warnf("[Auth] login failed: unknown user %s", username)
		return types.AuthResponse{}, fmt.Errorf("invalid credentials: %w", types.ErrUnauthorized)
	}
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return types.AuthResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		metrics.RecordAuthAttempt(false)
		tool.DefaultLogger.Warnf("[Auth] login failed: invalid password for %s", username)
		return types.AuthResponse{}, fmt.Errorf("invalid credentials: %w", types.ErrUnauthorized)
	}

	token, expires, err := a.issue(u.Username, time.Now())
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return types.AuthResponse{}, fmt.Errorf("sign token: %w", err)
	}
	metrics.RecordAuthAttempt(true)
	tool.DefaultLogger.Infof("[Auth] login successful: %s", u.Username)
	return types.AuthResponse{Token: token, ExpiresAt: expires}, nil
}

func (a *Auth) issue(username string, now time.Time) (string, time.Time, error) {
	expires := now.Add(a.ttl)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	return signed, expires, err
}

// Validate parses and verifies a token. Every failure wraps types.ErrUnauthorized.
func (a *Auth) Validate(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token: %w", types.ErrUnauthorized)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v: %w", err, types.ErrUnauthorized)
	}
	if a.revoked.Get(tool.ContentHash(tokenStr)) {
		return nil, fmt.Errorf("token has been revoked: %w", types.ErrUnauthorized)
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	return claims, nil
}

// Revoke rejects tokenStr from now until it would have expired anyway.
func (a *Auth) Revoke(tokenStr string) {
	if tokenStr == "" {
		return
	}
	a.revoked.Set(tool.ContentHash(tokenStr), true)
}

// ExtractToken strips the "Bearer " prefix from an Authorization value.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
