package catalog

import (
	"time"

	"github.com/terraconstructs/jitaccess/internal/resource"
)

// Options holds the policy options a deployment configures: duration
// ceilings, reviewer counts, required project tags, and scope filtering.
// These are the core's own configuration surface -- unlike runtime config
// loading (env/flag parsing), which is an external collaborator's concern.
type Options struct {
	// Scope is the root resource discovery queries are rooted at.
	Scope resource.Id

	// ActivationDuration is the ceiling on how long a granted activation may
	// last.
	ActivationDuration time.Duration

	// ActivationRequestDuration is the ceiling on how long a signed MPA
	// approval token remains valid.
	ActivationRequestDuration time.Duration

	// MinReviewers and MaxReviewers bound the size of an MPA request's
	// reviewer set.
	MinReviewers int
	MaxReviewers int

	// MaxJitRolesPerSelfApproval bounds how many roles a single JIT request
	// may activate at once.
	MaxJitRolesPerSelfApproval int

	// AvailableProjectsQuery, if non-empty, is a resource-manager search
	// query used in place of the repository's own project-discovery query.
	AvailableProjectsQuery string

	// RequiredProjectTagPath, if non-empty, is the go-bexpr tag predicate a
	// project must satisfy to be considered eligible. Consumed by the
	// policy-analyzer repository variant at construction time; carried here
	// too so callers can introspect the configured policy via Options().
	RequiredProjectTagPath string
}
