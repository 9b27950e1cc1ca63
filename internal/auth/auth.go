// Package auth authenticates API bearer tokens and checks their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// Scopes understood by the HTTP API.
const (
	ScopeAll       = "*"
	ScopeMenuRead  = "menu:ro"
	ScopeMenuWrite = "menu:rw"
	ScopeProcess   = "process:rw"
	ScopeHistory   = "history:ro"
)

var knownScopes = []string{ScopeAll, ScopeMenuRead, ScopeMenuWrite, ScopeProcess, ScopeHistory}

// implied lists the scopes a scope grants on top of itself.
var implied = map[string][]string{
	ScopeMenuWrite: {ScopeMenuRead},
}

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrMalformedHeader = errors.New("invalid Authorization header format")
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// CheckScopes rejects scope names the API does not know.
func CheckScopes(scopes []string) error {
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(knownScopes, s) {
			return fmt.Errorf("unknown scope %q (known: %s)", s, strings.Join(knownScopes, ", "))
		}
	}
	return nil
}

// ScopeSet is a normalized set of granted scopes.
type ScopeSet map[string]struct{}

func newScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
		for _, extra := range implied[s] {
			set[extra] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set grants scope, directly, by implication or through "*".
func (s ScopeSet) Has(scope string) bool {
	if _, ok := s[ScopeAll]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

// Principal is an authenticated caller. It never carries the raw token.
type Principal struct {
	// Name is "admin" for the API key and "token-<n>" (1-based) for scoped tokens.
	Name   string
	Scopes ScopeSet
}

// HasAnyScope reports whether p holds at least one of required. No requirement always passes.
func (p Principal) HasAnyScope(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, s := range required {
		if p.Scopes.Has(s) {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type credential struct {
	digest [32]byte
	who    Principal
}

// Authenticator matches presented tokens against the admin key and the scoped tokens.
// Tokens are kept as BLAKE3 digests and compared in constant time.
type Authenticator struct {
	creds []credential
}

// NewAuthenticator builds an Authenticator. An empty adminKey or token never matches.
func NewAuthenticator(adminKey string, tokens []TokenConfig) *Authenticator {
	a := &Authenticator{}
	if adminKey != "" {
		a.creds = append(a.creds, credential{
			digest: blake3.Sum256([]byte(adminKey)),
			who:    Principal{Name: "admin", Scopes: newScopeSet(ScopeAll)},
		})
	}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		a.creds = append(a.creds, credential{
			digest: blake3.Sum256([]byte(t.Token)),
			who:    Principal{Name: fmt.Sprintf("token-%d", i+1), Scopes: newScopeSet(t.Scopes...)},
		})
	}
	return a
}

// Authenticate returns the principal presented belongs to. Every credential is compared so
// the time taken does not depend on which one matched.
func (a *Authenticator) Authenticate(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	digest := blake3.Sum256([]byte(presented))

	var (
		found Principal
		ok    bool
	)
	for _, c := range a.creds {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 && !ok {
			found, ok = c.who, true
		}
	}
	return found, ok
}
