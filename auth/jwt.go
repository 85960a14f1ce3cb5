// Package auth verifies the bearer tokens that guard the upload endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrMissingToken     = errors.New("authorization header required")
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

// Claims are the fields vidcrush reads from an upload token. Deliver,
// StorageKey and SubDir are defaults the request query may override.
type Claims struct {
	Subject         string            `json:"sub,omitempty"`
	Issuer          string            `json:"iss,omitempty"`
	IssuedAt        int64             `json:"iat,omitempty"`
	ExpiresAt       int64             `json:"exp,omitempty"`
	Deliver         string            `json:"deliver,omitempty"`
	StorageKey      string            `json:"storageKey,omitempty"`
	SubDir          string            `json:"subDir,omitempty"`
	CallbackURL     string            `json:"callbackUrl,omitempty"`
	CallbackHeaders map[string]string `json:"callbackHeaders,omitempty"`
}

// Verifier checks HS256 tokens. A Verifier with no secret accepts every
// request and returns empty claims.
type Verifier struct {
	Secret    []byte
	Issuer    string        // optional
	ClockSkew time.Duration // optional
}

func (v Verifier) Enabled() bool { return len(v.Secret) > 0 }

// Verify parses and validates a compact JWT.
func (v Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if err := tok.Claims(v.Secret, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := time.Now().Unix()
	skew := int64(v.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < now-skew {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > now+skew {
		return nil, ErrTokenNotYetValid
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'", ErrInvalidIssuer, v.Issuer, claims.Issuer)
	}
	return claims, nil
}

// FromRequest verifies the bearer token of r.
func (v Verifier) FromRequest(r *http.Request) (*Claims, error) {
	if !v.Enabled() {
		return &Claims{}, nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return nil, fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}
	return v.Verify(token)
}

// Sign issues an HS256 token for claims. Used by tooling and tests.
func Sign(secret []byte, claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}
