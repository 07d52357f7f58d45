// Package indieauth implements the IndieAuth token lifecycle backing the
// Micropub authorization check: authorization codes, one-shot code-for-token
// exchange, scope verification, and revocation.
package indieauth

import "errors"

var (
	// ErrTokenNotFound is returned when a code or bearer key resolves to no
	// token. A second exchange of a spent code surfaces as this error, since
	// the code is cleared on first use.
	ErrTokenNotFound = errors.New("token not found")

	// ErrPermissionDenied is returned when a valid token lacks the scope
	// required for the requested action.
	ErrPermissionDenied = errors.New("permission denied")

	errInvalidRedirectURI = errors.New("redirect uri not registered for client")
)

// Micropub permission scopes.
const (
	ScopeCreate = "create"
	ScopeUpdate = "update"
	ScopeDelete = "delete"
	ScopeDraft  = "draft"
	ScopeMedia  = "media"
)

var validScopes = map[string]struct{}{
	ScopeCreate: {},
	ScopeUpdate: {},
	ScopeDelete: {},
	ScopeDraft:  {},
	ScopeMedia:  {},
}

// FilterScopes drops unknown scope keys, preserving request order.
func FilterScopes(requested []string) []string {
	out := make([]string, 0, len(requested))
	seen := map[string]struct{}{}
	for _, s := range requested {
		if _, ok := validScopes[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
