package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config is the signing setup shared by every token the service issues.
type Config struct {
	Secret    []byte
	Algorithm string
}

// Codec issues and decodes HMAC-signed JWTs. It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	c := &Codec{
		secret: cfg.Secret,
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "", jwt.SigningMethodHS256.Alg():
		return jwt.SigningMethodHS256, nil
	case jwt.SigningMethodHS512.Alg():
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

func (c *Codec) Algorithm() string { return c.method.Alg() }

// MinTTL is the shortest lifetime Issue accepts; exp is kept in whole seconds.
const MinTTL = time.Second

// Issue signs a token for subject valid for ttl from now.
func (c *Codec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || !purpose.valid() || ttl < MinTTL {
		return "", time.Time{}, ErrInvalidToken
	}
	now := c.now().UTC()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))

	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  iat,
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time, nil
}

// Decode verifies signature and expiry, then the purpose, and returns the subject.
func (c *Codec) Decode(token string, expected Purpose) (string, error) {
	claims, err := c.parse(token, jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Purpose != expected {
		return "", ErrPurposeMismatch
	}
	return claims.Subject, nil
}

// Subject returns the subject of any correctly signed token, expired or not.
func (c *Codec) Subject(token string) (string, error) {
	claims, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (c *Codec) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts = append(opts,
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
	)

	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.Subject == "" || !claims.Purpose.valid() {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
