package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medcatalog/api/internal/rbac"
)

var testSecret = []byte("catalog-test-secret")

func testValidator() *Validator {
	return NewStaticValidator(Options{
		Enabled:      true,
		Issuer:       "https://idp.example.com/",
		Audience:     "catalog-api",
		AdminEmails:  []string{"Ops@Example.com"},
		ValidMethods: []string{"HS256"},
	}, func(*jwt.Token) (interface{}, error) { return testSecret, nil })
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": "https://idp.example.com/",
		"aud": "catalog-api",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAuthenticateRoles(t *testing.T) {
	v := testValidator()
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   rbac.Role
	}{
		{name: "default viewer", claims: jwt.MapClaims{}, want: rbac.RoleViewer},
		{name: "role claim", claims: jwt.MapClaims{"catalog_role": "Editor"}, want: rbac.RoleEditor},
		{name: "unknown role", claims: jwt.MapClaims{"catalog_role": "owner"}, want: rbac.RoleViewer},
		{name: "admin email", claims: jwt.MapClaims{"email": "ops@example.com"}, want: rbac.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := v.Authenticate("Bearer " + signed(t, tc.claims))
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if p.Role != tc.want || p.Subject != "user-1" {
				t.Fatalf("principal = %+v, want role %q", p, tc.want)
			}
		})
	}
}

func TestAuthenticateRejects(t *testing.T) {
	v := testValidator()
	if _, err := v.Authenticate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("missing header error = %v", err)
	}
	if _, err := v.Authenticate("Basic abc"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("basic scheme error = %v", err)
	}
	expired := signed(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
	if _, err := v.Authenticate("Bearer " + expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired error = %v", err)
	}
	wrongIssuer := signed(t, jwt.MapClaims{"iss": "https://evil.example.com/"})
	if _, err := v.Authenticate("Bearer " + wrongIssuer); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("issuer error = %v", err)
	}
	wrongAudience := signed(t, jwt.MapClaims{"aud": "other"})
	if _, err := v.Authenticate("Bearer " + wrongAudience); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("audience error = %v", err)
	}
}

func TestDisabledValidatorUsesLocalPrincipal(t *testing.T) {
	v := NewStaticValidator(Options{}, nil)
	p, err := v.Authenticate("")
	if err != nil || p != LocalPrincipal {
		t.Fatalf("principal = %+v, err = %v", p, err)
	}
}
