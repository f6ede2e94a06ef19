package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIssuer is stamped into tokens when no issuer is configured.
	DefaultIssuer = "secureshop"

	// MinSecretLength is the shortest HS256 secret accepted.
	MinSecretLength = 32

	// issued-at may run ahead of the verifier's clock by this much.
	clockSkew = 5 * time.Second
)

// signingMethod is the only algorithm tokens are minted or accepted with.
var signingMethod = jwt.SigningMethodHS256

var errShortSecret = fmt.Errorf("auth secret must be at least %d bytes", MinSecretLength)

// JWTCodec signs and verifies access tokens with a single shared HS256 secret.
type JWTCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a JWTCodec.
type CodecOption func(*JWTCodec)

// WithIssuer sets the issuer stamped on new tokens and required on decoded ones.
func WithIssuer(issuer string) CodecOption {
	return func(c *JWTCodec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *JWTCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewJWTCodec builds a codec around secret.
func NewJWTCodec(secret []byte, opts ...CodecOption) (*JWTCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, errShortSecret
	}
	c := &JWTCodec{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for id that expires after ttl.
func (c *JWTCodec) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", id.Role)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:    subject,
		Role:      id.Role,
		Email:     strings.TrimSpace(id.Email),
		CompanyID: strings.TrimSpace(id.CompanyID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies the token signature under HS256 and validates its claims.
// It returns ErrTokenExpired for an authentic token past its expiry and
// ErrInvalidToken for everything else.
func (c *JWTCodec) Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	// Time-based claims are checked below, after the signature is known to be
	// good, so that an expired forgery still reports as invalid.
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != signingMethod {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if err := c.validateClaims(&claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *JWTCodec) validateClaims(claims *Claims) error {
	if claims.Issuer != c.issuer {
		return ErrInvalidToken
	}
	claims.UserID = strings.TrimSpace(claims.UserID)
	if claims.UserID == "" {
		claims.UserID = strings.TrimSpace(claims.Subject)
	}
	if claims.UserID == "" {
		return ErrInvalidToken
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return ErrInvalidToken
	}
	claims.Role = role
	if claims.ExpiresAt == nil {
		return ErrInvalidToken
	}

	now := c.now().UTC()
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return ErrInvalidToken
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return ErrInvalidToken
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	return nil
}
