package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/syntalk/im-server/config"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

// Auther issues and verifies the bearer tokens every authenticated surface
// (REST, WebSocket, long-poll) shares.
type Auther interface {
	Issue(user *model.User) (string, error)
	Verify(token string) (Identity, error)
	Bearer(header string) (Identity, error)
}

// Identity is the verified caller extracted from a token.
type Identity struct {
	UserID int64
	Admin  bool
}

type identityKey struct{}

// WithIdentity stores the verified caller on the request context; transport
// middleware sets it, handlers read it back through IdentityFromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type authClaims struct {
	UserID int64 `json:"uid"`
	Admin  bool  `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

type AuthService struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		secret:   []byte(cfg.Auth.Secret),
		issuer:   cfg.Auth.Issuer,
		tokenTTL: cfg.Auth.TokenTTL,
	}
}

func (s *AuthService) Issue(user *model.User) (string, error) {
	now := time.Now()
	claims := authClaims{
		UserID: user.ID,
		Admin:  user.IsAdmin(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", imerr.Wrap(imerr.Internal, "sign token", err)
	}
	return signed, nil
}

func (s *AuthService) Verify(raw string) (Identity, error) {
	var claims authClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, imerr.Wrap(imerr.UserTokenExpired, "token expired", err)
		}
		return Identity{}, imerr.Wrap(imerr.UserTokenInvalid, "invalid token", err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return Identity{}, imerr.New(imerr.UserTokenInvalid, "invalid token")
	}
	return Identity{UserID: claims.UserID, Admin: claims.Admin}, nil
}

// Bearer verifies an Authorization header value.
func (s *AuthService) Bearer(header string) (Identity, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Identity{}, imerr.New(imerr.SecurityUnauthorized, "missing bearer token")
	}
	return s.Verify(strings.TrimSpace(header[len(prefix):]))
}
