// Package catalog implements the project role catalog: it wraps an
// entitlement.Repository and a resource-manager collaborator, enforcing
// policy options atop whatever the repository discovers.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

// Catalog is the project role catalog: entitlement.Repository plus
// resource-manager, narrowed and shaped by Options.
type Catalog struct {
	repo            entitlement.Repository
	resourceManager clients.ResourceManager
	options         Options
	cache           *entitlementCache
	now             func() time.Time
}

// New builds a Catalog. cacheTTL, if positive, enables the caller-scoped
// entitlement cache; callers must pass a TTL <= opts.ActivationDuration.
func New(repo entitlement.Repository, resourceManager clients.ResourceManager, opts Options, cacheTTL time.Duration) *Catalog {
	return &Catalog{
		repo:            repo,
		resourceManager: resourceManager,
		options:         opts,
		cache:           newEntitlementCache(cacheTTL),
		now:             time.Now,
	}
}

// Options returns the catalog's configured policy options.
func (c *Catalog) Options() Options { return c.options }

// ListProjects returns the projects user holds at least one entitlement on.
// If AvailableProjectsQuery is configured, it is evaluated against the
// resource-manager's project search instead of delegating to the
// repository's own (possibly unsupported) discovery query.
func (c *Catalog) ListProjects(ctx context.Context, user principal.UserId) ([]resource.ProjectId, error) {
	if c.options.AvailableProjectsQuery != "" {
		projects, err := c.resourceManager.SearchProjects(ctx, c.options.AvailableProjectsQuery)
		if err != nil {
			return nil, errs.Wrapf(errs.AccessDenied, err, "search projects with override query")
		}
		sort.Slice(projects, func(i, j int) bool { return projects[i].Less(projects[j]) })
		return projects, nil
	}
	return c.repo.FindProjectsWithEntitlements(ctx, user)
}

// ListEntitlements returns user's entitlement set on project, restricted to
// the requested types and statuses, serving from the caller-scoped cache
// when available.
func (c *Catalog) ListEntitlements(
	ctx context.Context,
	user principal.UserId,
	project resource.ProjectId,
	types []entitlement.ActivationType,
	statuses []entitlement.Status,
) (entitlement.Set, error) {
	now := c.now()
	if set, ok := c.cache.get(user.Email, project.ShortId(), now); ok {
		return set.Filter(types, statuses), nil
	}

	set, err := c.repo.FindEntitlements(ctx, user, project, nil, nil)
	if err != nil {
		return entitlement.Set{}, err
	}
	c.cache.put(user.Email, project.ShortId(), now, set)
	return set.Filter(types, statuses), nil
}

// ListReviewers returns the users who could approve an MPA request for
// binding, excluding the requesting user: a user can never approve their
// own request.
func (c *Catalog) ListReviewers(
	ctx context.Context,
	user principal.UserId,
	binding rolebinding.ProjectRoleBinding,
) ([]principal.UserId, error) {
	holders, err := c.repo.FindEntitlementHolders(ctx, binding, entitlement.MPA)
	if err != nil {
		return nil, err
	}

	reviewers := make([]principal.UserId, 0, len(holders))
	for u := range holders {
		if u.Equal(user) {
			continue
		}
		reviewers = append(reviewers, u)
	}
	sort.Slice(reviewers, func(i, j int) bool { return reviewers[i].Email < reviewers[j].Email })
	return reviewers, nil
}

// VerifyUserCanActivate confirms that every roleBinding in bindings appears
// in user's AVAILABLE set for activationType. It returns errs.InvalidArgument
// naming the first binding that does not.
func (c *Catalog) VerifyUserCanActivate(
	ctx context.Context,
	user principal.UserId,
	bindings []rolebinding.ProjectRoleBinding,
	activationType entitlement.ActivationType,
) error {
	byProject := make(map[string][]rolebinding.ProjectRoleBinding)
	for _, b := range bindings {
		byProject[b.Project.ShortId()] = append(byProject[b.Project.ShortId()], b)
	}

	for _, projectBindings := range byProject {
		if err := c.verifyProjectInScope(ctx, projectBindings[0].Project); err != nil {
			return err
		}

		set, err := c.ListEntitlements(ctx, user, projectBindings[0].Project, []entitlement.ActivationType{activationType}, []entitlement.Status{entitlement.Available})
		if err != nil {
			return err
		}

		for _, b := range projectBindings {
			found := false
			for _, avail := range set.Available {
				if avail.Binding.Equal(b) && avail.ActivationType == activationType {
					found = true
					break
				}
			}
			if !found {
				return errs.Newf(errs.InvalidArgument, "user %s is not entitled to activate %s as %s", user, b, activationType)
			}
		}
	}
	return nil
}

// verifyProjectInScope confirms project sits at or beneath c.options.Scope
// by walking its ancestor chain. A zero Scope means the catalog is not
// restricted to a root resource, so every project passes. This rejects a
// caller-supplied binding for a project outside the configured discovery
// root even when that project happens to carry a structurally valid
// sentinel binding of its own.
func (c *Catalog) verifyProjectInScope(ctx context.Context, project resource.ProjectId) error {
	if c.options.Scope.IsZero() {
		return nil
	}
	if c.options.Scope.Type() == resource.Project {
		if c.options.Scope.ShortId() == project.ShortId() {
			return nil
		}
		return errs.Newf(errs.InvalidArgument, "project %s is outside configured scope %s", project, c.options.Scope)
	}

	ancestry, err := c.resourceManager.GetAncestry(ctx, project)
	if err != nil {
		return errs.Wrapf(errs.AccessDenied, err, "get ancestry for %s", project)
	}
	for _, a := range ancestry {
		if a.Type() == c.options.Scope.Type() && a.ShortId() == c.options.Scope.ShortId() {
			return nil
		}
	}
	return errs.Newf(errs.InvalidArgument, "project %s is outside configured scope %s", project, c.options.Scope)
}
