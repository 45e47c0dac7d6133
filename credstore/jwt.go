package credstore

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/opsdata-io/gateway/errs"
)

// DefaultBearerTTL is mint_bearer's default expiry (spec §4.8).
const DefaultBearerTTL = time.Hour

// BearerMinter mints and verifies the short-lived bearer tokens the MCP
// gateway's tool-invocation endpoint requires (spec §4.8, §6.3).
type BearerMinter struct {
	secret []byte
	ttl    time.Duration
}

func NewBearerMinter(secret string) *BearerMinter {
	return &BearerMinter{secret: []byte(secret), ttl: DefaultBearerTTL}
}

// WithTTL overrides the default 1h expiry, for tests.
func (m *BearerMinter) WithTTL(ttl time.Duration) *BearerMinter {
	m.ttl = ttl
	return m
}

// Bearer is the return shape of mint_bearer: {token, expires_at}.
type Bearer struct {
	Token     string
	ExpiresAt time.Time
}

// Mint produces a token bearing both userID and workspaceID and an
// expiry claim (spec §4.8: "mint_bearer(user_id, workspace_id) ->
// {token, expires_at}").
func (m *BearerMinter) Mint(userID, workspaceID string) (Bearer, error) {
	expiresAt := time.Now().Add(m.ttl)

	token, err := jwt.NewBuilder().
		Subject(userID).
		Claim("user_id", userID).
		Claim("workspace_id", workspaceID).
		IssuedAt(time.Now()).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return Bearer{}, errs.New(errs.ConfigInvalid, "failed building bearer token claims", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return Bearer{}, errs.New(errs.ConfigInvalid, "failed signing bearer token", err)
	}

	return Bearer{Token: string(signed), ExpiresAt: expiresAt}, nil
}

// Verify parses token and rejects it unless its workspace_id claim
// matches wantWorkspaceID (spec §4.8: "Verification rejects tokens
// whose workspace_id does not match the requested resource").
func (m *BearerMinter) Verify(tokenString, wantWorkspaceID string) (userID, workspaceID string, err error) {
	parsed, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, m.secret), jwt.WithValidate(true))
	if err != nil {
		return "", "", errs.New(errs.AuthExpired, "bearer token is invalid or expired", err)
	}

	uidClaim, _ := parsed.Get("user_id")
	wsClaim, _ := parsed.Get("workspace_id")
	uid, _ := uidClaim.(string)
	ws, _ := wsClaim.(string)

	if wantWorkspaceID != "" && ws != wantWorkspaceID {
		return "", "", errs.New(errs.AuthExpired, "bearer token workspace does not match the requested resource", nil)
	}
	return uid, ws, nil
}
