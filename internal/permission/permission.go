// Package permission implements the resource:action permission catalog and
// its wildcard evaluation semantics, independent of any HTTP concern.
//
// The grammar is "resource:action" where resource is lowercase letters and
// underscores (or "*"), and action is one of read, write, create, update,
// delete, manage, or "*". "jobs:*" grants every action on jobs; "*:*" grants
// everything.
package permission

import (
	"fmt"
	"sort"
	"strings"
)

// Wildcard matches any resource or any action depending on position.
const Wildcard = "*"

// Actions that may appear on the right-hand side of a permission tuple.
var validActions = map[string]bool{
	"read":   true,
	"write":  true,
	"create": true,
	"update": true,
	"delete": true,
	"manage": true,
	Wildcard: true,
}

// Permission is one normalized resource:action tuple.
type Permission struct {
	Resource string
	Action   string
}

// String returns the canonical "resource:action" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Parse validates and normalizes a "resource:action" string.
func Parse(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("invalid permission %q: want resource:action", s)
	}

	resource := strings.ToLower(strings.TrimSpace(parts[0]))
	action := strings.ToLower(strings.TrimSpace(parts[1]))

	if !validResource(resource) {
		return Permission{}, fmt.Errorf("invalid permission %q: resource must be letters/underscore or *", s)
	}
	if !validActions[action] {
		return Permission{}, fmt.Errorf("invalid permission %q: unknown action %q", s, action)
	}

	return Permission{Resource: resource, Action: action}, nil
}

func validResource(r string) bool {
	if r == Wildcard {
		return true
	}
	if r == "" {
		return false
	}
	for _, c := range r {
		if (c < 'a' || c > 'z') && c != '_' {
			return false
		}
	}
	return true
}

// Set is a normalized collection of permission tuples supporting wildcard
// lookup. The zero value is an empty set that allows nothing.
type Set map[Permission]struct{}

// NewSet parses each string and returns the resulting set. The first
// malformed entry aborts with an error.
func NewSet(perms []string) (Set, error) {
	set := make(Set, len(perms))
	for _, s := range perms {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Allows reports whether the set grants action on resource. A set entry
// matches on an exact tuple, a resource-level wildcard ("jobs:*"), or the
// global wildcard ("*:*").
func (s Set) Allows(resource, action string) bool {
	if len(s) == 0 {
		return false
	}
	candidates := [3]Permission{
		{Resource: resource, Action: action},
		{Resource: resource, Action: Wildcard},
		{Resource: Wildcard, Action: Wildcard},
	}
	for _, c := range candidates {
		if _, ok := s[c]; ok {
			return true
		}
	}
	return false
}

// Strings returns the set in canonical string form, sorted for stable output.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// ValidateAll parses every string and returns the first error, if any.
// Used by the key issuer to reject malformed permission lists up front.
func ValidateAll(perms []string) error {
	for _, s := range perms {
		if _, err := Parse(s); err != nil {
			return err
		}
	}
	return nil
}
