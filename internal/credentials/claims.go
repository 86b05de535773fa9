package credentials

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a bearer token is opaque rather than a JWT.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the identity carried by a JWT session token.
type Claims struct {
	Subject   string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Address   string     `json:"address,omitempty" yaml:"address,omitempty"`
	Email     string     `json:"email,omitempty" yaml:"email,omitempty"`
	Role      string     `json:"role,omitempty" yaml:"role,omitempty"`
	TenantID  string     `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// ParseClaims reads the claims of a JWT without verifying its signature.
// The service verifies tokens; the CLI only displays them.
func ParseClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoCredential
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrNotJWT
	}

	out := &Claims{}
	out.Subject, _ = claims.GetSubject()
	out.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}

	out.Address = stringClaim(claims, "address", "wallet")
	// Some issuers put the email in "username"
	out.Email = stringClaim(claims, "email", "username")
	out.Role = stringClaim(claims, "role")
	out.TenantID = stringClaim(claims, "tenant_id", "tenantId")
	return out, nil
}

// Identity returns the best label for who the token belongs to.
func (c *Claims) Identity() string {
	switch {
	case c.Address != "":
		return c.Address
	case c.Email != "":
		return c.Email
	}
	return c.Subject
}

// ExpiredAt reports whether the token's own exp claim has passed. Tokens
// without an exp claim never expire by this check.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func stringClaim(claims jwt.MapClaims, names ...string) string {
	for _, name := range names {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
