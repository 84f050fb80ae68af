package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel validation errors the middleware switches on to produce a
// specific unauthorized message rather than a generic one.
var (
	ErrExpiredToken      = errors.New("auth: token has expired")
	ErrInvalidSignature  = errors.New("auth: invalid token signature")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrMissingUserInCtx  = errors.New("auth: no user in request context")
)

// Claims is the JWT payload this engine's demo HTTP surface issues and
// validates. UserID is the principal identity; thread ownership is
// authorized at the handler layer by comparing UserID against the
// thread id path parameter, not encoded in the token itself.
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTConfig configures a Validator.
type JWTConfig struct {
	SigningMethod string
	SecretKey     string
	Issuer        string
	Audience      []string
}

// JWTGeneratorConfig configures a Generator, adding the expiry the
// validator side does not need to know about.
type JWTGeneratorConfig struct {
	SigningMethod string
	SecretKey     string
	Issuer        string
	Audience      []string
	ExpiryTime    time.Duration
}

// JWTValidator verifies bearer tokens issued for the demo HTTP shim.
type JWTValidator struct {
	secretKey []byte
	issuer    string
	audience  []string
}

func NewJWTValidator(cfg JWTConfig) (*JWTValidator, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("auth: JWT secret key must not be empty")
	}
	return &JWTValidator{secretKey: []byte(cfg.SecretKey), issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

// ValidateToken parses and verifies a signed token, returning its claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secretKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWTGenerator issues tokens for the demo shim's login/refresh endpoints.
// The governance core never calls this itself; it exists only so the
// demo's auth surface is runnable end to end.
type JWTGenerator struct {
	secretKey []byte
	issuer    string
	audience  []string
	expiry    time.Duration
}

func NewJWTGenerator(cfg JWTGeneratorConfig) (*JWTGenerator, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("auth: JWT secret key must not be empty")
	}
	expiry := cfg.ExpiryTime
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &JWTGenerator{secretKey: []byte(cfg.SecretKey), issuer: cfg.Issuer, audience: cfg.Audience, expiry: expiry}, nil
}

func (g *JWTGenerator) GenerateToken(userID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Audience:  g.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secretKey)
}

// UserContext is the authenticated principal attached to a request's
// context by the auth middleware.
type UserContext struct {
	UserID string
	Email  string
	Roles  []string
}

type contextKey string

const userContextKey contextKey = "groundedmemory.auth.user"

func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrMissingUserInCtx
	}
	return user, nil
}
