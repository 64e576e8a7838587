// Package analyzer implements the policy-analyzer-backed entitlement
// repository: it derives eligibility and activity purely from the cloud
// policy-analysis API, never reading a project's IAM policy directly.
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-bexpr"
	"golang.org/x/sync/errgroup"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// minimalProjectAccessPermission is the permission FindAccessibleResourcesByUser
// filters on when discovering which projects a user has any entitlement on:
// any role that can be JIT/MPA-gated implies at least viewer-level access.
const minimalProjectAccessPermission = "resourcemanager.projects.get"

// tagFacts is the struct go-bexpr evaluates requiredProjectTagPath against.
// Tags is a flattened namespacedName -> value map, so expressions look like
// `Tags["env/production"] == "true"`.
type tagFacts struct {
	Tags map[string]string `bexpr:"Tags"`
}

// Repository is the policy-analyzer-backed entitlement.Repository.
type Repository struct {
	scope           resource.Id
	analyzer        clients.PolicyAnalyzer
	resourceManager clients.ResourceManager
	requiredTagExpr *bexpr.Evaluator
	fanOutWorkers   int
}

// New builds a policy-analyzer-backed Repository. requiredProjectTagPath, if
// non-empty, is a go-bexpr expression evaluated against a project's
// effective tags; projects that don't match are excluded from
// FindProjectsWithEntitlements. fanOutWorkers bounds concurrent per-project
// calls; a non-positive value defaults to 8.
func New(
	scope resource.Id,
	analyzerClient clients.PolicyAnalyzer,
	resourceManager clients.ResourceManager,
	requiredProjectTagPath string,
	fanOutWorkers int,
) (*Repository, error) {
	r := &Repository{
		scope:           scope,
		analyzer:        analyzerClient,
		resourceManager: resourceManager,
		fanOutWorkers:   fanOutWorkers,
	}
	if r.fanOutWorkers <= 0 {
		r.fanOutWorkers = 8
	}
	if requiredProjectTagPath != "" {
		eval, err := bexpr.CreateEvaluator(requiredProjectTagPath)
		if err != nil {
			return nil, fmt.Errorf("analyzer: invalid requiredProjectTagPath expression: %w", err)
		}
		r.requiredTagExpr = eval
	}
	return r, nil
}

// FindProjectsWithEntitlements queries the analyzer for every resource user
// has minimal project access to (expanding folders/orgs into member
// projects), then -- if a required tag is configured -- filters the result
// concurrently, one GetProjectEffectiveTags call per candidate project.
func (r *Repository) FindProjectsWithEntitlements(ctx context.Context, user principal.UserId) ([]resource.ProjectId, error) {
	result, err := r.analyzer.FindAccessibleResourcesByUser(
		ctx, r.scope, user, minimalProjectAccessPermission, "", true,
	)
	if err != nil {
		return nil, errs.Wrapf(errs.AccessDenied, err, "find accessible resources for %s", user)
	}

	projectSet := make(map[string]resource.ProjectId)
	for _, b := range result.Bindings {
		if pid, ok := resource.ProjectIdFromFullName(b.ResourceFullName); ok {
			projectSet[pid.ShortId()] = pid
		}
	}

	projects := make([]resource.ProjectId, 0, len(projectSet))
	for _, p := range projectSet {
		projects = append(projects, p)
	}

	if r.requiredTagExpr != nil {
		projects, err = r.filterByRequiredTag(ctx, projects)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Less(projects[j]) })
	return projects, nil
}

func (r *Repository) filterByRequiredTag(ctx context.Context, projects []resource.ProjectId) ([]resource.ProjectId, error) {
	kept := make([]bool, len(projects))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanOutWorkers)

	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			tags, err := r.resourceManager.GetProjectEffectiveTags(ctx, p.FullName())
			if err != nil {
				return errs.Wrapf(errs.AccessDenied, err, "get effective tags for %s", p)
			}
			facts := tagFacts{Tags: make(map[string]string, len(tags))}
			for _, t := range tags {
				facts.Tags[t.NamespacedName] = t.TagValue
			}
			ok, err := r.requiredTagExpr.Evaluate(facts)
			if err != nil {
				return errs.Wrapf(errs.InvalidArgument, err, "evaluate requiredProjectTagPath against %s", p)
			}
			kept[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]resource.ProjectId, 0, len(projects))
	for i, p := range projects {
		if kept[i] {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindEntitlements fetches bindings scoped to project and classifies each
// one: JIT/MPA markers evaluating CONDITIONAL are eligible (AVAILABLE);
// activated-grant conditions evaluating TRUE are active. Analyzer warnings
// are surfaced verbatim rather than failing the request.
func (r *Repository) FindEntitlements(
	ctx context.Context,
	user principal.UserId,
	project resource.ProjectId,
	types []entitlement.ActivationType,
	statuses []entitlement.Status,
) (entitlement.Set, error) {
	result, err := r.analyzer.FindAccessibleResourcesByUser(ctx, r.scope, user, "", project.FullName(), false)
	if err != nil {
		return entitlement.Set{}, errs.Wrapf(errs.AccessDenied, err, "find entitlements for %s on %s", user, project)
	}

	set := entitlement.NewSet()
	set.Warnings = append(set.Warnings, result.Warnings...)

	for _, b := range result.Bindings {
		binding, ok := rolebinding.FromRoleBinding(rolebinding.New(b.ResourceFullName, b.Role))
		if !ok {
			continue
		}

		switch {
		case condition.IsJitMarker(b.Condition) && b.Evaluation == clients.EvalConditional:
			set.Add(entitlement.New(binding, entitlement.JIT, entitlement.Available))
		case condition.IsMpaMarker(b.Condition) && b.Evaluation == clients.EvalConditional:
			set.Add(entitlement.New(binding, entitlement.MPA, entitlement.Available))
		case condition.IsActivated(b.Condition) && b.Evaluation == clients.EvalTrue:
			set.AddActive(binding)
		}
	}

	return set.Filter(types, statuses), nil
}

// FindEntitlementHolders returns the users who hold the approval marker for
// binding's role, expanding group members is not necessary here: the
// analyzer variant queries FindPermissionedPrincipalsByResource, which
// already resolves effective principals including group expansion
// server-side.
func (r *Repository) FindEntitlementHolders(
	ctx context.Context,
	binding rolebinding.ProjectRoleBinding,
	activationType entitlement.ActivationType,
) (map[principal.UserId]struct{}, error) {
	result, err := r.analyzer.FindPermissionedPrincipalsByResource(ctx, r.scope, binding.ResourceFullName, binding.Role)
	if err != nil {
		return nil, errs.Wrapf(errs.AccessDenied, err, "find permissioned principals for %s", binding)
	}

	holders := make(map[principal.UserId]struct{})
	for _, b := range result.Bindings {
		if !condition.IsApprovalMarker(b.Condition, activationType) {
			continue
		}
		for _, ref := range b.Members {
			if ref.IsUser() {
				holders[principal.NewUserId(ref.Email(), ref.Email())] = struct{}{}
			}
		}
	}
	return holders, nil
}
