// Package identity describes the principal on whose behalf a model is resolved.
package identity

import (
	"sort"
	"strings"
)

// Anonymous is the principal used when a caller supplies no identity.
var Anonymous = Identity{Name: "anonymous"}

// Identity is the calling principal.
type Identity struct {
	// Name is the principal name (user or service account).
	Name string `json:"name"`

	// Groups are the groups the principal belongs to.
	Groups []string `json:"groups,omitempty"`

	// Token is the bearer credential forwarded to remote stores.
	Token string `json:"-"`
}

// New creates an identity with the given name and groups.
func New(name string, groups ...string) Identity {
	return Identity{Name: name, Groups: groups}
}

// WithToken returns a copy of the identity carrying a bearer token.
func (i Identity) WithToken(token string) Identity {
	i.Token = token
	return i
}

// IsAnonymous reports whether the identity has no name.
func (i Identity) IsAnonymous() bool {
	return i.Name == "" || i.Name == Anonymous.Name
}

// ScopeKey returns a stable string scoping cache entries to this principal.
// Group order does not affect the key.
func (i Identity) ScopeKey() string {
	if i.IsAnonymous() {
		return Anonymous.Name
	}
	if len(i.Groups) == 0 {
		return i.Name
	}
	groups := append([]string(nil), i.Groups...)
	sort.Strings(groups)
	return i.Name + "[" + strings.Join(groups, ",") + "]"
}

// InGroup reports whether the identity is a member of group.
func (i Identity) InGroup(group string) bool {
	for _, g := range i.Groups {
		if g == group {
			return true
		}
	}
	return false
}
