package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

type fakeAnalyzer struct {
	byUser      clients.AnalysisResult
	byResource  clients.AnalysisResult
	byUserErr   error
	byResErr    error
	gotExpand   []bool
}

func (f *fakeAnalyzer) FindAccessibleResourcesByUser(
	_ context.Context, _ resource.Id, _ principal.UserId, _ string, _ string, expand bool,
) (clients.AnalysisResult, error) {
	f.gotExpand = append(f.gotExpand, expand)
	return f.byUser, f.byUserErr
}

func (f *fakeAnalyzer) FindPermissionedPrincipalsByResource(
	_ context.Context, _ resource.Id, _ string, _ string,
) (clients.AnalysisResult, error) {
	return f.byResource, f.byResErr
}

func (f *fakeAnalyzer) GetEffectiveIamPolicies(
	_ context.Context, _ resource.Id, _ resource.ProjectId,
) ([]clients.PolicyWithSource, error) {
	return nil, nil
}

type fakeResourceManager struct {
	tags map[string][]resource.Tag
}

func (f *fakeResourceManager) GetProjectEffectiveTags(_ context.Context, fullName string) ([]resource.Tag, error) {
	return f.tags[fullName], nil
}
func (f *fakeResourceManager) SearchProjects(context.Context, string) ([]resource.ProjectId, error) {
	return nil, nil
}
func (f *fakeResourceManager) GetIamPolicy(context.Context, resource.ProjectId) (clients.Policy, error) {
	return clients.Policy{}, nil
}
func (f *fakeResourceManager) SetIamPolicy(context.Context, resource.ProjectId, clients.Policy, string) error {
	return nil
}
func (f *fakeResourceManager) GetAncestry(context.Context, resource.ProjectId) ([]resource.Id, error) {
	return nil, nil
}

func TestFindProjectsWithEntitlementsExpandsAndDedupes(t *testing.T) {
	t.Parallel()

	p1 := resource.NewProjectId("alpha")
	analyzerClient := &fakeAnalyzer{
		byUser: clients.AnalysisResult{
			Bindings: []clients.BindingResult{
				{ResourceFullName: p1.FullName(), Role: "roles/browser"},
				{ResourceFullName: p1.FullName(), Role: "roles/editor"},
			},
		},
	}

	repo, err := New(resource.New(resource.Organization, "org-1"), analyzerClient, &fakeResourceManager{}, "", 0)
	require.NoError(t, err)

	projects, err := repo.FindProjectsWithEntitlements(context.Background(), principal.NewUserId("1", "alice@example.com"))
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "alpha", projects[0].ShortId())
	require.Equal(t, []bool{true}, analyzerClient.gotExpand)
}

func TestFindProjectsWithEntitlementsFiltersByRequiredTag(t *testing.T) {
	t.Parallel()

	p1 := resource.NewProjectId("alpha")
	p2 := resource.NewProjectId("beta")
	analyzerClient := &fakeAnalyzer{
		byUser: clients.AnalysisResult{
			Bindings: []clients.BindingResult{
				{ResourceFullName: p1.FullName(), Role: "roles/browser"},
				{ResourceFullName: p2.FullName(), Role: "roles/browser"},
			},
		},
	}
	rm := &fakeResourceManager{
		tags: map[string][]resource.Tag{
			p1.FullName(): {{NamespacedName: "env", TagValue: "prod"}},
			p2.FullName(): {{NamespacedName: "env", TagValue: "dev"}},
		},
	}

	repo, err := New(resource.New(resource.Organization, "org-1"), analyzerClient, rm, `Tags["env"] == "prod"`, 2)
	require.NoError(t, err)

	projects, err := repo.FindProjectsWithEntitlements(context.Background(), principal.NewUserId("1", "alice@example.com"))
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "alpha", projects[0].ShortId())
}

func TestFindEntitlementsClassifiesJitMpaAndActive(t *testing.T) {
	t.Parallel()

	project := resource.NewProjectId("alpha")
	analyzerClient := &fakeAnalyzer{
		byUser: clients.AnalysisResult{
			Warnings: []string{"non-critical: quota warning"},
			Bindings: []clients.BindingResult{
				{
					ResourceFullName: project.FullName(),
					Role:             "roles/browser",
					Condition:        &condition.Condition{Expression: "has({}.jitAccessConstraint)"},
					Evaluation:       clients.EvalConditional,
				},
				{
					ResourceFullName: project.FullName(),
					Role:             "roles/editor",
					Condition:        &condition.Condition{Expression: "has({}.multiPartyApprovalConstraint)"},
					Evaluation:       clients.EvalConditional,
				},
				{
					// Sentinel plus extra conjunct: must NOT be classified as eligible.
					ResourceFullName: project.FullName(),
					Role:             "roles/viewer",
					Condition:        &condition.Condition{Expression: "has({}.jitAccessConstraint) && true"},
					Evaluation:       clients.EvalConditional,
				},
				{
					ResourceFullName: project.FullName(),
					Role:             "roles/iam.admin",
					Condition: &condition.Condition{
						Title:      condition.ActivatedTitle,
						Expression: `(request.time >= timestamp("2026-08-03T10:00:00Z") && request.time < timestamp("2026-08-03T10:05:00Z"))`,
					},
					Evaluation: clients.EvalTrue,
				},
			},
		},
	}

	repo, err := New(resource.New(resource.Organization, "org-1"), analyzerClient, &fakeResourceManager{}, "", 0)
	require.NoError(t, err)

	set, err := repo.FindEntitlements(
		context.Background(),
		principal.NewUserId("1", "alice@example.com"),
		project,
		nil,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, []string{"non-critical: quota warning"}, set.Warnings)
	require.Len(t, set.Available, 2)
	require.Equal(t, "roles/browser", set.Available[0].DisplayName)
	require.Equal(t, entitlement.JIT, set.Available[0].ActivationType)
	require.Equal(t, "roles/editor", set.Available[1].DisplayName)
	require.Equal(t, entitlement.MPA, set.Available[1].ActivationType)
	require.Len(t, set.Active, 1)
}

func TestFindEntitlementHoldersFiltersByApprovalMarker(t *testing.T) {
	t.Parallel()

	project := resource.NewProjectId("alpha")
	binding := project.FullName()
	analyzerClient := &fakeAnalyzer{
		byResource: clients.AnalysisResult{
			Bindings: []clients.BindingResult{
				{
					ResourceFullName: binding,
					Role:             "roles/iam.admin",
					Members:          []principal.Ref{principal.NewUserRef("bob@example.com"), principal.NewGroupRef("team@example.com")},
					Condition:        &condition.Condition{Expression: "has({}.multiPartyApprovalConstraint)"},
				},
				{
					ResourceFullName: binding,
					Role:             "roles/iam.admin",
					Members:          []principal.Ref{principal.NewUserRef("carol@example.com")},
					Condition:        &condition.Condition{Expression: "has({}.jitAccessConstraint)"},
				},
			},
		},
	}

	repo, err := New(resource.New(resource.Organization, "org-1"), analyzerClient, &fakeResourceManager{}, "", 0)
	require.NoError(t, err)

	prb := rolebinding.NewProject(project, "roles/iam.admin")

	holders, err := repo.FindEntitlementHolders(context.Background(), prb, entitlement.MPA)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	_, hasBob := holders[principal.NewUserId("bob@example.com", "bob@example.com")]
	require.True(t, hasBob)
}
