// Package entitlement defines the Entitlement and EntitlementSet value
// types and the repository contract both concrete variants (policy-analyzer
// and asset-inventory) implement.
package entitlement

import (
	"sort"

	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// ActivationType re-exports condition.ActivationType: the classifier owns
// the enum since recognizing it from condition text is its job.
type ActivationType = condition.ActivationType

const (
	JIT = condition.JIT
	MPA = condition.MPA
)

// Status is where an entitlement sits in the JIT lifecycle.
type Status int

const (
	Available Status = iota
	Active
	ActivationPending
)

func (s Status) String() string {
	switch s {
	case Available:
		return "AVAILABLE"
	case Active:
		return "ACTIVE"
	case ActivationPending:
		return "ACTIVATION_PENDING"
	default:
		return "UNKNOWN"
	}
}

// Entitlement is a potential or actual role assignment: a role binding the
// user is eligible for or currently holds, annotated with how it would be
// (or was) activated.
type Entitlement struct {
	ID             string
	DisplayName    string
	Binding        rolebinding.ProjectRoleBinding
	ActivationType ActivationType
	Status         Status
}

// New builds an Entitlement, deriving ID and DisplayName from the binding.
func New(binding rolebinding.ProjectRoleBinding, activationType ActivationType, status Status) Entitlement {
	return Entitlement{
		ID:             binding.String(),
		DisplayName:    binding.Role,
		Binding:        binding,
		ActivationType: activationType,
		Status:         status,
	}
}

// Less orders entitlements first by Status, then by DisplayName, matching
// the data model's ordering invariant.
func Less(a, b Entitlement) bool {
	if a.Status != b.Status {
		return a.Status < b.Status
	}
	return a.DisplayName < b.DisplayName
}

// Set is the result of a catalog/repository query: the entitlements a user
// could activate, the bindings currently active for them, and any
// non-critical warnings surfaced during discovery.
type Set struct {
	Available []Entitlement
	Active    map[rolebinding.ProjectRoleBinding]struct{}
	Warnings  []string
}

// NewSet builds an empty Set ready for accumulation.
func NewSet() Set {
	return Set{Active: make(map[rolebinding.ProjectRoleBinding]struct{})}
}

// AddWarning appends a non-critical discovery warning.
func (s *Set) AddWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// AddActive records binding as currently held.
func (s *Set) AddActive(binding rolebinding.ProjectRoleBinding) {
	s.Active[binding] = struct{}{}
}

// Add inserts e into Available, enforcing the at-most-once-per-binding
// invariant: if an entitlement for the same binding already exists, JIT
// wins over MPA (JIT is strictly more permissive: self-approval). Add is
// idempotent and keeps Available sorted after every call.
func (s *Set) Add(e Entitlement) {
	for i, existing := range s.Available {
		if existing.Binding.Equal(e.Binding) {
			if existing.ActivationType == MPA && e.ActivationType == JIT {
				s.Available[i] = e
			}
			s.sort()
			return
		}
	}
	s.Available = append(s.Available, e)
	s.sort()
}

func (s *Set) sort() {
	sort.SliceStable(s.Available, func(i, j int) bool {
		return Less(s.Available[i], s.Available[j])
	})
}

// Merge folds other's Available (deduped per the JIT-over-MPA rule), Active
// and Warnings into s.
func (s *Set) Merge(other Set) {
	for _, e := range other.Available {
		s.Add(e)
	}
	for b := range other.Active {
		s.AddActive(b)
	}
	s.Warnings = append(s.Warnings, other.Warnings...)
}

// Filter returns the subset of s restricted to the requested activation
// types and statuses. A nil/empty filter matches everything.
func (s Set) Filter(types []ActivationType, statuses []Status) Set {
	out := NewSet()
	out.Warnings = append(out.Warnings, s.Warnings...)
	typeOK := func(t ActivationType) bool {
		if len(types) == 0 {
			return true
		}
		for _, want := range types {
			if want == t {
				return true
			}
		}
		return false
	}
	statusOK := func(st Status) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if want == st {
				return true
			}
		}
		return false
	}
	for _, e := range s.Available {
		if typeOK(e.ActivationType) && statusOK(e.Status) {
			out.Add(e)
		}
	}
	if statusOK(Active) {
		for b := range s.Active {
			out.AddActive(b)
		}
	}
	return out
}
