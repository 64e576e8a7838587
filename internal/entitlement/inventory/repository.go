// Package inventory implements the asset-inventory-backed entitlement
// repository: it reads a project's effective IAM policy (including
// ancestors) directly, rather than relying on the policy-analyzer API's
// pre-computed condition evaluation.
package inventory

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// Repository is the asset-inventory-backed entitlement.Repository.
type Repository struct {
	scope           resource.Id
	analyzer        clients.PolicyAnalyzer
	directoryGroups clients.DirectoryGroups
	fanOutWorkers   int
	now             func() time.Time
}

// New builds an asset-inventory-backed Repository.
func New(scope resource.Id, analyzerClient clients.PolicyAnalyzer, directoryGroups clients.DirectoryGroups, fanOutWorkers int) *Repository {
	if fanOutWorkers <= 0 {
		fanOutWorkers = 8
	}
	return &Repository{
		scope:           scope,
		analyzer:        analyzerClient,
		directoryGroups: directoryGroups,
		fanOutWorkers:   fanOutWorkers,
		now:             time.Now,
	}
}

// FindProjectsWithEntitlements is unsupported by the asset-inventory
// variant: there is no efficient way to answer "which projects" from raw
// policy documents without enumerating every project in scope. Callers must
// configure an availableProjectsQuery override instead.
func (r *Repository) FindProjectsWithEntitlements(ctx context.Context, user principal.UserId) ([]resource.ProjectId, error) {
	return nil, errs.New(errs.NotSupported, "asset-inventory repository cannot enumerate projects with entitlements; configure availableProjectsQuery")
}

// FindEntitlements fetches project's effective IAM policy (including
// ancestors) and the user's direct group memberships concurrently, builds
// the principal set {user:email} ∪ {group:email for each group}, and
// classifies every binding whose members intersect that set.
func (r *Repository) FindEntitlements(
	ctx context.Context,
	user principal.UserId,
	project resource.ProjectId,
	types []entitlement.ActivationType,
	statuses []entitlement.Status,
) (entitlement.Set, error) {
	var policies []clients.PolicyWithSource
	var groups []principal.GroupId

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		policies, err = r.analyzer.GetEffectiveIamPolicies(gctx, r.scope, project)
		if err != nil {
			return errs.Wrapf(errs.AccessDenied, err, "get effective iam policies for %s", project)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		groups, err = r.directoryGroups.ListDirectGroupMemberships(gctx, user)
		if err != nil {
			return errs.Wrapf(errs.AccessDenied, err, "list group memberships for %s", user)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return entitlement.Set{}, err
	}

	principals := principal.NewSet(user.Ref())
	for _, grp := range groups {
		principals[grp.Ref()] = struct{}{}
	}

	now := r.now()
	set := entitlement.NewSet()

	for _, p := range policies {
		for _, b := range p.Policy.Bindings {
			memberSet := principal.NewSet(b.Members...)
			if !memberSet.Intersects(principals) {
				continue
			}

			binding, ok := rolebinding.FromRoleBinding(rolebinding.New(project.FullName(), b.Role))
			if !ok {
				continue
			}

			switch {
			case condition.IsJitMarker(b.Condition):
				set.Add(entitlement.New(binding, entitlement.JIT, entitlement.Available))
			case condition.IsMpaMarker(b.Condition):
				set.Add(entitlement.New(binding, entitlement.MPA, entitlement.Available))
			case condition.IsActivated(b.Condition):
				active, err := condition.Evaluate(b.Condition.Expression, now)
				if err == nil && active {
					set.AddActive(binding)
				}
			}
		}
	}

	return set.Filter(types, statuses), nil
}

// FindEntitlementHolders inspects the project's bindings for role and the
// approval marker matching activationType, expanding any group-typed
// member's direct membership concurrently.
func (r *Repository) FindEntitlementHolders(
	ctx context.Context,
	binding rolebinding.ProjectRoleBinding,
	activationType entitlement.ActivationType,
) (map[principal.UserId]struct{}, error) {
	policies, err := r.analyzer.GetEffectiveIamPolicies(ctx, r.scope, binding.Project)
	if err != nil {
		return nil, errs.Wrapf(errs.AccessDenied, err, "get effective iam policies for %s", binding.Project)
	}

	var groupRefs []principal.Ref
	holders := make(map[principal.UserId]struct{})

	for _, p := range policies {
		for _, b := range p.Policy.Bindings {
			if b.Role != binding.Role || !condition.IsApprovalMarker(b.Condition, activationType) {
				continue
			}
			for _, ref := range b.Members {
				switch {
				case ref.IsUser():
					holders[principal.NewUserId(ref.Email(), ref.Email())] = struct{}{}
				case ref.IsGroup():
					groupRefs = append(groupRefs, ref)
				}
			}
		}
	}

	if len(groupRefs) == 0 {
		return holders, nil
	}

	expanded := make([][]principal.UserId, len(groupRefs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanOutWorkers)
	for i, ref := range groupRefs {
		i, ref := i, ref
		g.Go(func() error {
			members, err := r.directoryGroups.ListDirectGroupMembers(gctx, principal.GroupId(ref.Email()))
			if err != nil {
				return errs.Wrapf(errs.AccessDenied, err, "list members of group %s", ref)
			}
			expanded[i] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, members := range expanded {
		for _, u := range members {
			holders[principal.NewUserId(u.Email, u.Email)] = struct{}{}
		}
	}

	return holders, nil
}
