// Package token inspects bearer tokens locally, without contacting the backend.
//
// Only the payload segment is read and the signature is never verified: the
// result decides whether a request is worth sending, not whether the caller
// is trusted. Every decoding failure resolves to "expired".
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

const segmentCount = 3

var (
	ErrMalformed = errors.New("malformed token")
	ErrNoExpiry  = errors.New("token has no expiry claim")
)

// Payload is the decoded middle segment of a token.
type Payload struct {
	ExpiresAt time.Time
	Claims    jwt.MapClaims
}

// ExpiredAt reports whether the payload is expired at the given instant.
// A token is expired from its exp second onwards.
func (p Payload) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Claim returns a claim as a string, or "" when absent or not a string.
func (p Payload) Claim(name string) string {
	s, _ := p.Claims[name].(string)
	return s
}

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode parses the payload segment of tok. It fails with ErrMalformed or
// ErrNoExpiry, never panics.
func Decode(tok string) (Payload, error) {
	if tok == "" {
		return Payload{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	parts := strings.Split(tok, ".")
	if len(parts) < segmentCount {
		return Payload{}, fmt.Errorf("%w: expected %d segments, got %d", ErrMalformed, segmentCount, len(parts))
	}

	raw, err := decodeSegment(parts[1])
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !utf8.Valid(raw) {
		return Payload{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformed)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if exp == nil {
		return Payload{}, ErrNoExpiry
	}

	return Payload{ExpiresAt: exp.Time, Claims: claims}, nil
}

// decodeSegment accepts the URL alphabet tokens are issued with, and the
// standard alphabet some backends emit.
func decodeSegment(seg string) ([]byte, error) {
	raw, err := parser.DecodeSegment(seg)
	if err == nil {
		return raw, nil
	}
	if raw, stdErr := base64.StdEncoding.DecodeString(seg); stdErr == nil {
		return raw, nil
	}
	if raw, stdErr := base64.RawStdEncoding.DecodeString(seg); stdErr == nil {
		return raw, nil
	}
	return nil, err
}

// IsExpired reports whether tok must be treated as expired at now.
// Absent, malformed and exp-less tokens are expired.
func IsExpired(tok string, now time.Time) bool {
	p, err := Decode(tok)
	if err != nil {
		return true
	}
	return p.ExpiredAt(now)
}

// Remaining returns how long tok stays valid after now, or zero.
func Remaining(tok string, now time.Time) time.Duration {
	p, err := Decode(tok)
	if err != nil || p.ExpiredAt(now) {
		return 0
	}
	return p.ExpiresAt.Sub(now)
}

// Codec binds expiry checks to a clock.
type Codec struct {
	now func() time.Time
}

// NewCodec creates a codec reading time from now. A nil now uses time.Now.
func NewCodec(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

func (c *Codec) IsExpired(tok string) bool {
	return IsExpired(tok, c.now())
}

func (c *Codec) Remaining(tok string) time.Duration {
	return Remaining(tok, c.now())
}

func (c *Codec) Now() time.Time {
	return c.now()
}
