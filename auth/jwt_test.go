package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("vidcrush-test-secret-that-is-at-least-32-bytes")

func sign(t *testing.T, secret []byte, c *Claims) string {
	t.Helper()
	token, err := Sign(secret, c)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return token
}

func TestVerifyValid(t *testing.T) {
	v := Verifier{Secret: testSecret, Issuer: "vidcrush"}
	token := sign(t, testSecret, &Claims{
		Subject:   "user-1",
		Issuer:    "vidcrush",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Deliver:   "link",
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-1" || claims.Deliver != "link" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestVerifyErrors(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		token  string
		want   error
		issuer string
	}{
		{"empty", "", ErrInvalidToken, ""},
		{"garbage", "not-a-jwt", ErrInvalidToken, ""},
		{"wrong secret", sign(t, []byte("another-secret-that-is-also-32-bytes-long"), &Claims{}), ErrInvalidSignature, ""},
		{"expired", sign(t, testSecret, &Claims{ExpiresAt: now.Add(-time.Hour).Unix()}), ErrTokenExpired, ""},
		{"future", sign(t, testSecret, &Claims{IssuedAt: now.Add(time.Hour).Unix()}), ErrTokenNotYetValid, ""},
		{"issuer", sign(t, testSecret, &Claims{Issuer: "other"}), ErrInvalidIssuer, "vidcrush"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Verifier{Secret: testSecret, Issuer: tt.issuer}
			if _, err := v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClockSkew(t *testing.T) {
	token := sign(t, testSecret, &Claims{ExpiresAt: time.Now().Add(-30 * time.Second).Unix()})
	v := Verifier{Secret: testSecret, ClockSkew: time.Minute}
	if _, err := v.Verify(token); err != nil {
		t.Errorf("Expected token within skew to pass, got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	v := Verifier{Secret: testSecret}

	r := httptest.NewRequest("POST", "/pick", nil)
	if _, err := v.FromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}

	r.Header.Set("Authorization", "Basic abc")
	if _, err := v.FromRequest(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+sign(t, testSecret, &Claims{Subject: "s"}))
	claims, err := v.FromRequest(r)
	if err != nil || claims.Subject != "s" {
		t.Errorf("Expected subject s, got %+v, %v", claims, err)
	}
}

func TestDisabledVerifier(t *testing.T) {
	r := httptest.NewRequest("POST", "/pick", nil)
	claims, err := Verifier{}.FromRequest(r)
	if err != nil || claims == nil {
		t.Errorf("Disabled verifier should pass, got %+v, %v", claims, err)
	}
}
