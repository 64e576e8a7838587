// Package activation defines the ActivationRequest and Activation value
// objects: immutable records of what a user asked to activate, how, and
// (once applied) when.
package activation

import (
	"time"

	"github.com/google/uuid"

	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// Type distinguishes a self-approved request from one requiring peer review.
type Type string

const (
	JitSelfApproval Type = "JIT_SELF_APPROVAL"
	Mpa             Type = "MPA"
)

const minDuration = time.Minute

// Request is an immutable JIT or MPA activation request. Requests compare
// equal by ID alone.
type Request struct {
	ID             string
	Type           Type
	RequestingUser principal.UserId
	Entitlements   []rolebinding.ProjectRoleBinding
	Justification  string
	StartTime      time.Time
	EndTime        time.Time
	// Reviewers is populated for MPA requests only.
	Reviewers []principal.UserId
}

// Equal compares two requests by ID, per the data model.
func (r Request) Equal(other Request) bool { return r.ID == other.ID }

// Duration returns the activation window's length.
func (r Request) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }

// NewJitRequest builds a JIT_SELF_APPROVAL request. All entitlements must
// share a project with no role repeated; entitlements must be non-empty and
// at most maxRoles; duration must be between one minute and maxDuration.
// Whether each entitlement is of activation type JIT is not checked here.
func NewJitRequest(
	user principal.UserId,
	bindings []rolebinding.ProjectRoleBinding,
	justification string,
	start time.Time,
	duration time.Duration,
	maxRoles int,
	maxDuration time.Duration,
) (Request, error) {
	if err := validateBindingsShareProject(bindings); err != nil {
		return Request{}, err
	}
	if maxRoles > 0 && len(bindings) > maxRoles {
		return Request{}, errs.Newf(errs.InvalidArgument, "at most %d roles may be requested per self-approval, got %d", maxRoles, len(bindings))
	}
	if err := validateDuration(duration, maxDuration); err != nil {
		return Request{}, err
	}
	if justification == "" {
		return Request{}, errs.New(errs.InvalidArgument, "justification must not be empty")
	}

	return Request{
		ID:             "jit-" + uuid.NewString(),
		Type:           JitSelfApproval,
		RequestingUser: user,
		Entitlements:   bindings,
		Justification:  justification,
		StartTime:      start,
		EndTime:        start.Add(duration),
	}, nil
}

// NewMpaRequest builds an MPA request for exactly one entitlement. The
// requesting user and duplicate entries are dropped from reviewers; the
// remaining count must lie within [minReviewers, maxReviewers]. Whether the
// entitlement is of activation type MPA is not checked here.
func NewMpaRequest(
	user principal.UserId,
	bindings []rolebinding.ProjectRoleBinding,
	reviewers []principal.UserId,
	justification string,
	start time.Time,
	duration time.Duration,
	minReviewers, maxReviewers int,
	maxDuration time.Duration,
) (Request, error) {
	if len(bindings) != 1 {
		return Request{}, errs.Newf(errs.InvalidArgument, "an MPA request activates exactly one role, got %d", len(bindings))
	}
	if err := validateDuration(duration, maxDuration); err != nil {
		return Request{}, err
	}
	if justification == "" {
		return Request{}, errs.New(errs.InvalidArgument, "justification must not be empty")
	}

	dedup := make(map[string]principal.UserId, len(reviewers))
	for _, r := range reviewers {
		if r.Equal(user) {
			continue
		}
		dedup[r.Email] = r
	}
	filtered := make([]principal.UserId, 0, len(dedup))
	for _, r := range dedup {
		filtered = append(filtered, r)
	}
	if len(filtered) < minReviewers || (maxReviewers > 0 && len(filtered) > maxReviewers) {
		return Request{}, errs.Newf(errs.InvalidArgument, "reviewer count %d outside configured bounds [%d, %d]", len(filtered), minReviewers, maxReviewers)
	}

	return Request{
		ID:             "mpa-" + uuid.NewString(),
		Type:           Mpa,
		RequestingUser: user,
		Entitlements:   bindings,
		Justification:  justification,
		StartTime:      start,
		EndTime:        start.Add(duration),
		Reviewers:      filtered,
	}, nil
}

func validateBindingsShareProject(bindings []rolebinding.ProjectRoleBinding) error {
	if len(bindings) == 0 {
		return errs.New(errs.InvalidArgument, "at least one entitlement must be requested")
	}
	project := bindings[0].Project
	seen := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if !b.Project.Equal(project) {
			return errs.New(errs.InvalidArgument, "all requested entitlements must belong to the same project")
		}
		if _, dup := seen[b.Role]; dup {
			return errs.Newf(errs.InvalidArgument, "duplicate role %q in request", b.Role)
		}
		seen[b.Role] = struct{}{}
	}
	return nil
}

func validateDuration(duration, maxDuration time.Duration) error {
	if duration < minDuration {
		return errs.Newf(errs.InvalidArgument, "activation duration %s is below the minimum of %s", duration, minDuration)
	}
	if maxDuration > 0 && duration > maxDuration {
		return errs.Newf(errs.InvalidArgument, "activation duration %s exceeds the configured ceiling of %s", duration, maxDuration)
	}
	return nil
}

// Activation is the ephemeral record produced by a successful activate or
// approve call: the request that was fulfilled, and when.
type Activation struct {
	Request        Request
	ActivationTime time.Time
}
