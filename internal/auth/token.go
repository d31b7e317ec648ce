package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/rbac"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the caller a request acts on behalf of.
type Principal struct {
	Subject string
	Email   string
	Role    rbac.Role
}

// LocalPrincipal acts for requests when authentication is disabled.
var LocalPrincipal = Principal{Subject: "local", Email: "local@localhost", Role: rbac.RoleAdmin}

type Options struct {
	Enabled     bool
	Issuer      string
	Audience    string
	JWKSURL     string
	RoleClaim   string
	AdminEmails []string
	// ValidMethods defaults to the RSA family.
	ValidMethods []string
}

// Validator verifies IdP-issued bearer tokens and maps them to principals.
type Validator struct {
	opts    Options
	keyfunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
	admins  map[string]struct{}
}

// NewValidator starts fetching the IdP key set when authentication is enabled.
func NewValidator(ctx context.Context, opts Options, log *logger.Logger) (*Validator, error) {
	if !opts.Enabled {
		return newValidator(opts, nil), nil
	}

	jwks, err := keyfunc.Get(opts.JWKSURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error("jwks refresh error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	v := newValidator(opts, jwks.Keyfunc)
	v.jwks = jwks
	return v, nil
}

// NewStaticValidator verifies tokens against a fixed key function.
func NewStaticValidator(opts Options, kf jwt.Keyfunc) *Validator {
	return newValidator(opts, kf)
}

func newValidator(opts Options, kf jwt.Keyfunc) *Validator {
	if len(opts.ValidMethods) == 0 {
		opts.ValidMethods = []string{"RS256", "RS384", "RS512"}
	}
	if opts.RoleClaim == "" {
		opts.RoleClaim = "catalog_role"
	}
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, email := range opts.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	return &Validator{opts: opts, keyfunc: kf, admins: admins}
}

func (v *Validator) Enabled() bool {
	return v != nil && v.opts.Enabled
}

// Close stops the background key refresh.
func (v *Validator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Authenticate resolves the principal for an Authorization header value.
func (v *Validator) Authenticate(header string) (Principal, error) {
	if !v.Enabled() {
		return LocalPrincipal, nil
	}
	raw := BearerToken(header)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithIssuer(v.opts.Issuer),
		jwt.WithValidMethods(v.opts.ValidMethods),
		jwt.WithExpirationRequired(),
	}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyfunc, parserOpts...)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	return Principal{Subject: subject, Email: email, Role: v.roleFor(claims, email)}, nil
}

func (v *Validator) roleFor(claims jwt.MapClaims, email string) rbac.Role {
	if _, ok := v.admins[strings.ToLower(email)]; ok && email != "" {
		return rbac.RoleAdmin
	}
	if role, ok := claims[v.opts.RoleClaim].(string); ok {
		return rbac.Normalize(strings.ToLower(role))
	}
	return rbac.RoleViewer
}

func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
