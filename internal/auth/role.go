package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a closed-set label used to gate access to protected operations.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleClerk    Role = "clerk"
	RoleCustomer Role = "customer"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleAdmin, RoleClerk, RoleCustomer}

// ParseRole normalizes a role label. Matching is case-insensitive so tokens
// minted with upper-case labels ("ADMIN") are accepted.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClerk, RoleCustomer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// RoleSet is an immutable set of roles bound to a protected operation when it
// is registered. The zero value admits nobody.
type RoleSet struct {
	members map[Role]struct{}
}

// Roles builds a RoleSet from the given roles. Unknown roles are ignored.
func Roles(roles ...Role) RoleSet {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		set[r] = struct{}{}
	}
	return RoleSet{members: set}
}

// AnyRole admits every known role.
func AnyRole() RoleSet {
	return Roles(AllRoles...)
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s.members[r]
	return ok
}

// Len returns the number of roles in the set.
func (s RoleSet) Len() int { return len(s.members) }

// List returns the members sorted by name.
func (s RoleSet) List() []Role {
	out := make([]Role, 0, len(s.members))
	for r := range s.members {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s RoleSet) String() string {
	names := make([]string, 0, len(s.members))
	for _, r := range s.List() {
		names = append(names, string(r))
	}
	return strings.Join(names, ",")
}
