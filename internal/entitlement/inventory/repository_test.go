package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
)

type fakeAnalyzer struct {
	policies []clients.PolicyWithSource
}

func (f *fakeAnalyzer) FindAccessibleResourcesByUser(context.Context, resource.Id, principal.UserId, string, string, bool) (clients.AnalysisResult, error) {
	return clients.AnalysisResult{}, nil
}
func (f *fakeAnalyzer) FindPermissionedPrincipalsByResource(context.Context, resource.Id, string, string) (clients.AnalysisResult, error) {
	return clients.AnalysisResult{}, nil
}
func (f *fakeAnalyzer) GetEffectiveIamPolicies(context.Context, resource.Id, resource.ProjectId) ([]clients.PolicyWithSource, error) {
	return f.policies, nil
}

type fakeGroups struct {
	memberships map[string][]principal.GroupId
	members     map[string][]principal.UserId
}

func (f *fakeGroups) ListDirectGroupMemberships(_ context.Context, user principal.UserId) ([]principal.GroupId, error) {
	return f.memberships[user.Email], nil
}
func (f *fakeGroups) ListDirectGroupMembers(_ context.Context, group principal.GroupId) ([]principal.UserId, error) {
	return f.members[string(group)], nil
}

func TestFindProjectsWithEntitlementsIsNotSupported(t *testing.T) {
	t.Parallel()

	repo := New(resource.New(resource.Organization, "org-1"), &fakeAnalyzer{}, &fakeGroups{}, 0)
	_, err := repo.FindProjectsWithEntitlements(context.Background(), principal.NewUserId("1", "alice@example.com"))
	require.True(t, errs.Is(err, errs.NotSupported))
}

func TestFindEntitlementsFiltersByPrincipalSetAndClassifies(t *testing.T) {
	t.Parallel()

	project := resource.NewProjectId("alpha")
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)

	analyzerClient := &fakeAnalyzer{
		policies: []clients.PolicyWithSource{
			{
				Source: project.ToResourceId(),
				Policy: clients.Policy{
					Bindings: []clients.PolicyBinding{
						{
							Role:      "roles/browser",
							Members:   []principal.Ref{principal.NewUserRef("alice@example.com")},
							Condition: &condition.Condition{Expression: "has({}.jitAccessConstraint)"},
						},
						{
							Role:      "roles/editor",
							Members:   []principal.Ref{principal.NewGroupRef("team@example.com")},
							Condition: &condition.Condition{Expression: "has({}.multiPartyApprovalConstraint)"},
						},
						{
							Role:    "roles/iam.admin",
							Members: []principal.Ref{principal.NewUserRef("alice@example.com")},
							Condition: &condition.Condition{
								Title:      condition.ActivatedTitle,
								Expression: `(request.time >= timestamp("2026-08-03T11:00:00Z") && request.time < timestamp("2026-08-03T13:00:00Z"))`,
							},
						},
						{
							// Not a member of alice's principal set: excluded.
							Role:      "roles/owner",
							Members:   []principal.Ref{principal.NewUserRef("mallory@example.com")},
							Condition: &condition.Condition{Expression: "has({}.jitAccessConstraint)"},
						},
					},
				},
			},
		},
	}

	groups := &fakeGroups{
		memberships: map[string][]principal.GroupId{
			"alice@example.com": {"team@example.com"},
		},
	}

	repo := New(resource.New(resource.Organization, "org-1"), analyzerClient, groups, 0)
	repo.now = func() time.Time { return now }

	set, err := repo.FindEntitlements(context.Background(), principal.NewUserId("1", "alice@example.com"), project, nil, nil)
	require.NoError(t, err)
	require.Len(t, set.Available, 2)
	require.Len(t, set.Active, 1)
}

func TestFindEntitlementHoldersExpandsGroups(t *testing.T) {
	t.Parallel()

	project := resource.NewProjectId("alpha")
	analyzerClient := &fakeAnalyzer{
		policies: []clients.PolicyWithSource{
			{
				Policy: clients.Policy{
					Bindings: []clients.PolicyBinding{
						{
							Role:      "roles/iam.admin",
							Members:   []principal.Ref{principal.NewGroupRef("approvers@example.com"), principal.NewUserRef("dave@example.com")},
							Condition: &condition.Condition{Expression: "has({}.multiPartyApprovalConstraint)"},
						},
					},
				},
			},
		},
	}
	groups := &fakeGroups{
		members: map[string][]principal.UserId{
			"approvers@example.com": {principal.NewUserId("2", "erin@example.com")},
		},
	}

	repo := New(resource.New(resource.Organization, "org-1"), analyzerClient, groups, 0)
	binding := rolebinding.NewProject(project, "roles/iam.admin")

	holders, err := repo.FindEntitlementHolders(context.Background(), binding, entitlement.MPA)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	_, hasDave := holders[principal.NewUserId("dave@example.com", "dave@example.com")]
	_, hasErin := holders[principal.NewUserId("erin@example.com", "erin@example.com")]
	require.True(t, hasDave)
	require.True(t, hasErin)
}
