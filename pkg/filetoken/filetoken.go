// Package filetoken signs attachment filenames into opaque, expiring tokens.
//
// Tokens are HS256 JWTs whose key is derived from the server secret and a
// salt, and whose audience is the salt, so a token minted for another
// purpose with the same secret never decodes here.
package filetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyFilename = errors.New("filename is required")
	ErrInvalid       = errors.New("invalid file token")
	ErrExpired       = errors.New("file token expired")
)

type claims struct {
	Filename string `json:"filename"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes file tokens.
type Codec struct {
	key    []byte
	salt   string
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. maxAge 0 disables the expiry check.
func NewCodec(secret, salt string, maxAge time.Duration) *Codec {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	return &Codec{
		key:    mac.Sum(nil),
		salt:   salt,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Encode signs filename.
func (c *Codec) Encode(filename string) (string, error) {
	if filename == "" {
		return "", ErrEmptyFilename
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Filename: filename,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{c.salt},
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	})
	return token.SignedString(c.key)
}

// Decode verifies token and returns the filename it carries.
func (c *Codec) Decode(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(c.salt),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || cl.Filename == "" || cl.IssuedAt == nil {
		return "", ErrInvalid
	}
	if c.maxAge > 0 && c.now().Sub(cl.IssuedAt.Time) > c.maxAge {
		return "", ErrExpired
	}
	return cl.Filename, nil
}
