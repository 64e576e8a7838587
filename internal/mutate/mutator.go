// Package mutate implements the IAM binding mutator: applying a
// time-bounded role binding to a project's IAM policy under a read-modify-
// write cycle with optional purge-and-replace semantics and etag-conflict
// retry.
package mutate

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
)

// Option bit-flags controlling how applyTemporaryBinding reconciles the new
// binding against the policy it reads.
type Option int

const (
	// PurgeExistingTemporaryBindings removes every activated-temporary-grant
	// binding for the same (principal, role) before appending the new one.
	PurgeExistingTemporaryBindings Option = 1 << iota
	// FailIfBindingExists aborts with AlreadyExists if a structurally-equal
	// binding is already present, after any purge has run.
	FailIfBindingExists
)

func (o Option) has(flag Option) bool { return o&flag != 0 }

const (
	maxRetries    = 3
	initialBackoff = 100 * time.Millisecond
)

// Mutator applies temporary bindings against a ResourceManager collaborator.
type Mutator struct {
	resourceManager clients.ResourceManager
	sleep           func(d time.Duration)
}

// New builds a Mutator backed by resourceManager.
func New(resourceManager clients.ResourceManager) *Mutator {
	return &Mutator{
		resourceManager: resourceManager,
		sleep:           time.Sleep,
	}
}

// ApplyTemporaryBinding grants principal role on project for [start, start+duration),
// reading, reconciling, and writing back the policy per options, retrying on
// etag conflict with exponential backoff for at most maxRetries attempts in
// all.
func (m *Mutator) ApplyTemporaryBinding(
	ctx context.Context,
	project resource.ProjectId,
	principalRef principal.Ref,
	role string,
	start time.Time,
	duration time.Duration,
	reason string,
	options Option,
) error {
	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		err := m.applyOnce(ctx, project, principalRef, role, start, duration, reason, options)
		if err == nil {
			return nil
		}
		if !isEtagConflict(err) {
			return err
		}
		if attempt >= maxRetries-1 {
			return errs.Wrapf(errs.ConflictRetryExhausted, err, "etag conflict applying binding for %s on %s after %d attempts", principalRef, project, maxRetries)
		}
		m.sleep(backoff)
		backoff = time.Duration(math.Round(float64(backoff) * 2))
	}
}

func (m *Mutator) applyOnce(
	ctx context.Context,
	project resource.ProjectId,
	principalRef principal.Ref,
	role string,
	start time.Time,
	duration time.Duration,
	reason string,
	options Option,
) error {
	policy, err := m.resourceManager.GetIamPolicy(ctx, project)
	if err != nil {
		return err
	}

	newBinding := clients.PolicyBinding{
		Role:    role,
		Members: []principal.Ref{principalRef},
		Condition: func() *condition.Condition {
			c := condition.TemporaryConditionFor(start, duration)
			return &c
		}(),
	}

	bindings := policy.Bindings
	if options.has(PurgeExistingTemporaryBindings) {
		bindings = purge(bindings, principalRef, role)
	}

	if options.has(FailIfBindingExists) && containsEqualBinding(bindings, newBinding) {
		return errs.Newf(errs.AlreadyExists, "binding for %s as %s already exists on %s", principalRef, role, project)
	}

	bindings = append(bindings, newBinding)

	newPolicy := clients.Policy{Bindings: bindings, Etag: policy.Etag}
	if err := m.resourceManager.SetIamPolicy(ctx, project, newPolicy, reason); err != nil {
		if errors.Is(err, clients.ErrEtagConflict) {
			return err
		}
		return errs.Wrapf(errs.AccessDenied, err, "apply binding for %s as %s on %s", principalRef, role, project)
	}
	return nil
}

// purge removes every binding whose condition is an activated temporary
// grant, whose sole member is principalRef, and whose role matches role.
// Permanent bindings and bindings naming other principals are preserved.
func purge(bindings []clients.PolicyBinding, principalRef principal.Ref, role string) []clients.PolicyBinding {
	out := make([]clients.PolicyBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Role == role && condition.IsActivated(b.Condition) && soleMember(b.Members, principalRef) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func soleMember(members []principal.Ref, ref principal.Ref) bool {
	return len(members) == 1 && members[0] == ref
}

// Equal reports whether two bindings are structurally equal: equal role,
// equal member sets (order-insensitive), and equal condition. When
// ignoreCondition is true, condition is excluded from the comparison --
// used by diagnostic tooling, never by activation.
func Equal(a, b clients.PolicyBinding, ignoreCondition bool) bool {
	if a.Role != b.Role {
		return false
	}
	if !sameMemberSet(a.Members, b.Members) {
		return false
	}
	if ignoreCondition {
		return true
	}
	return condition.Equal(a.Condition, b.Condition)
}

func sameMemberSet(a, b []principal.Ref) bool {
	if len(a) != len(b) {
		return false
	}
	set := principal.NewSet(a...)
	for _, ref := range b {
		if !set.Contains(ref) {
			return false
		}
	}
	return true
}

func containsEqualBinding(bindings []clients.PolicyBinding, target clients.PolicyBinding) bool {
	for _, b := range bindings {
		if Equal(b, target, false) {
			return true
		}
	}
	return false
}

func isEtagConflict(err error) bool {
	return errors.Is(err, clients.ErrEtagConflict)
}
