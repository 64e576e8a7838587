package entitlement

import (
	"context"

	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// Repository derives a user's eligible and active role bindings by fanning
// out to an external policy-analysis collaborator. Both concrete variants
// (the policy-analyzer-backed one in ./analyzer and the asset-inventory-
// backed one in ./inventory) implement this same contract.
type Repository interface {
	// FindProjectsWithEntitlements returns the sorted set of projects user
	// holds at least one entitlement on. The asset-inventory variant has no
	// efficient way to answer this and fails with errs.NotSupported;
	// callers must use an availableProjectsQuery override in that case.
	FindProjectsWithEntitlements(ctx context.Context, user principal.UserId) ([]resource.ProjectId, error)

	// FindEntitlements returns the union of eligible and active bindings for
	// user on project, restricted to the requested activation types and
	// statuses (an empty slice matches everything).
	FindEntitlements(
		ctx context.Context,
		user principal.UserId,
		project resource.ProjectId,
		types []ActivationType,
		statuses []Status,
	) (Set, error)

	// FindEntitlementHolders returns the users who could approve an MPA
	// request for binding -- i.e. who hold the matching approval marker for
	// binding's role on binding's project.
	FindEntitlementHolders(
		ctx context.Context,
		binding rolebinding.ProjectRoleBinding,
		activationType ActivationType,
	) (map[principal.UserId]struct{}, error)
}
