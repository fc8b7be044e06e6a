package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "rulegov/pkg/errors"
)

// Capability tokens guarding the governance surface.
const (
	CapRulesRead       = "rules:read"
	CapRulesWrite      = "rules:write"
	CapApprovalsSubmit = "approvals:submit"
	CapApprovalsDecide = "approvals:decide"
	CapAuditRead       = "audit:read"
)

// Claims is the only supported token shape. The subject is the principal
// recorded as performed_by on every mutation it makes.
type Claims struct {
	jwt.RegisteredClaims

	Capabilities []string `json:"capabilities"`
}

// Verifier checks bearer tokens. HS256 only.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, pkgerrors.ErrUnauthorized.WithCause(err).WithDetail("message", "invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, pkgerrors.ErrUnauthorized.WithDetail("message", "token has no subject")
	}
	return &claims, nil
}
