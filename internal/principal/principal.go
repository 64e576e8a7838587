// Package principal models the identities (users, groups, and the
// principal-set references IAM bindings carry) that entitlements are
// evaluated against.
package principal

import (
	"fmt"
	"sort"
)

// UserId is a (id, email) pair. Equal compares two UserIds by email alone --
// the directory's internal id is informational. Used as a map key, a UserId
// compares both fields, so two values with the same email and different ids
// are distinct keys.
type UserId struct {
	ID    string
	Email string
}

func NewUserId(id, email string) UserId {
	return UserId{ID: id, Email: email}
}

func (u UserId) Equal(other UserId) bool { return u.Email == other.Email }

func (u UserId) String() string { return u.Email }

// Ref returns the "user:" prefixed principal reference for this user.
func (u UserId) Ref() Ref { return Ref("user:" + u.Email) }

// GroupId is a group's email address.
type GroupId string

// Ref returns the "group:" prefixed principal reference for this group.
func (g GroupId) Ref() Ref { return Ref("group:" + string(g)) }

func (g GroupId) String() string { return string(g) }

// Ref is a tagged string identifying a principal within an IAM binding's
// member list: "user:<email>" or "group:<email>".
type Ref string

const (
	userPrefix  = "user:"
	groupPrefix = "group:"
)

// NewUserRef builds a "user:<email>" reference.
func NewUserRef(email string) Ref { return Ref(userPrefix + email) }

// NewGroupRef builds a "group:<email>" reference.
func NewGroupRef(email string) Ref { return Ref(groupPrefix + email) }

// IsUser reports whether the reference is tagged "user:".
func (r Ref) IsUser() bool { return len(r) > len(userPrefix) && string(r[:len(userPrefix)]) == userPrefix }

// IsGroup reports whether the reference is tagged "group:".
func (r Ref) IsGroup() bool {
	return len(r) > len(groupPrefix) && string(r[:len(groupPrefix)]) == groupPrefix
}

// Email strips the "user:" or "group:" tag, returning the bare email.
func (r Ref) Email() string {
	switch {
	case r.IsUser():
		return string(r[len(userPrefix):])
	case r.IsGroup():
		return string(r[len(groupPrefix):])
	default:
		return string(r)
	}
}

func (r Ref) String() string { return string(r) }

// Set is a principal set: the member list of an IAM binding, deduplicated.
type Set map[Ref]struct{}

// NewSet builds a Set from the given references.
func NewSet(refs ...Ref) Set {
	s := make(Set, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether ref is a member of the set.
func (s Set) Contains(ref Ref) bool {
	_, ok := s[ref]
	return ok
}

// Intersects reports whether s and other share any member.
func (s Set) Intersects(other Set) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for ref := range small {
		if big.Contains(ref) {
			return true
		}
	}
	return false
}

// Slice returns the set's members as a stable-ordered slice, sorted for
// deterministic comparison and output.
func (s Set) Slice() []Ref {
	out := make([]Ref, 0, len(s))
	for ref := range s {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the set as a sorted, comma-joined list for diagnostics.
func (s Set) String() string {
	refs := s.Slice()
	out := ""
	for i, r := range refs {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}

var _ fmt.Stringer = Ref("")
