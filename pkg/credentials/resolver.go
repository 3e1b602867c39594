package credentials

import (
	"context"
	"strings"
)

// Credential is the result of a successful Resolve.
type Credential struct {
	// APIKey is the caller's key.
	APIKey string

	// Cookie is the pooled cookie as configured, used when marking it invalid.
	Cookie string

	// Token is the bearer part of Cookie sent upstream.
	Token string
}

// Resolver maps caller API keys to upstream credentials using the Store's
// current pool snapshot. It never reads the invalid set; cookies rejected
// after the last rotation are caught by the relay from the upstream response.
type Resolver struct {
	store *Store
}

// NewResolver creates a Resolver over store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Check reports whether apiKey is in the current pool, returning the same
// *AuthError Resolve would. It does not advance the round robin or count a
// use.
func (r *Resolver) Check(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrMissingAPIKey
	}
	if !r.store.Snapshot().Has(apiKey) {
		return &AuthError{Kind: AuthMissing, Message: "Invalid API key"}
	}
	return nil
}

// Resolve returns the next credential for apiKey. Keys with several cookies
// are served in round robin order.
func (r *Resolver) Resolve(ctx context.Context, apiKey string) (Credential, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Credential{}, ErrMissingAPIKey
	}

	entry, ok := r.store.Snapshot().lookup(apiKey)
	if !ok {
		return Credential{}, &AuthError{Kind: AuthMissing, Message: "Invalid API key"}
	}

	cookie := entry.pick()
	token := SplitCookie(cookie)
	if token == "" {
		return Credential{}, &AuthError{Kind: AuthInvalid, Message: "Invalid API key"}
	}

	r.store.recordUse(apiKey)

	return Credential{
		APIKey: apiKey,
		Cookie: cookie,
		Token:  token,
	}, nil
}
