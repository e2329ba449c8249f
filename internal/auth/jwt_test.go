package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret", "voicechat")
	token, err := v.Sign("u1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "u1" {
		t.Fatalf("expected u1, got %q", id)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret", "voicechat")

	other, _ := NewJWTVerifier("other-secret", "voicechat").Sign("u1", time.Hour)
	wrongAud, _ := NewJWTVerifier("secret", "someone-else").Sign("u1", time.Hour)
	expired, _ := v.Sign("u1", -time.Minute)
	noUser, _ := v.Sign("", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", other, ErrInvalidToken},
		{"wrong audience", wrongAud, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"missing user id", noUser, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestJWTVerifier_NoAudienceConfigured(t *testing.T) {
	v := NewJWTVerifier("secret", "")
	token, _ := NewJWTVerifier("secret", "deepgram-app").Sign("u9", time.Hour)
	if id, err := v.Verify(token); err != nil || id != "u9" {
		t.Fatalf("expected audience to be ignored, got %q %v", id, err)
	}
}
