package mutate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
)

type fakeResourceManager struct {
	policy       clients.Policy
	conflictsLeft int
	setCalls     int
	lastReason   string
}

func (f *fakeResourceManager) GetProjectEffectiveTags(context.Context, string) ([]resource.Tag, error) {
	return nil, nil
}
func (f *fakeResourceManager) SearchProjects(context.Context, string) ([]resource.ProjectId, error) {
	return nil, nil
}
func (f *fakeResourceManager) GetIamPolicy(context.Context, resource.ProjectId) (clients.Policy, error) {
	return f.policy, nil
}
func (f *fakeResourceManager) SetIamPolicy(_ context.Context, _ resource.ProjectId, policy clients.Policy, reason string) error {
	f.setCalls++
	f.lastReason = reason
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return fmt.Errorf("conflict: %w", clients.ErrEtagConflict)
	}
	f.policy = policy
	return nil
}
func (f *fakeResourceManager) GetAncestry(context.Context, resource.ProjectId) ([]resource.Id, error) {
	return nil, nil
}

func TestApplyTemporaryBindingAppendsNewBinding(t *testing.T) {
	t.Parallel()

	rm := &fakeResourceManager{}
	m := New(rm)
	m.sleep = func(time.Duration) {}

	alice := principal.NewUserRef("alice@example.com")
	start := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	err := m.ApplyTemporaryBinding(context.Background(), resource.NewProjectId("alpha"), alice, "roles/browser", start, 5*time.Minute, "case-1", 0)
	require.NoError(t, err)
	require.Len(t, rm.policy.Bindings, 1)
	require.Equal(t, "case-1", rm.lastReason)
	require.True(t, condition.IsActivated(rm.policy.Bindings[0].Condition))
}

func TestApplyTemporaryBindingPurgesPriorGrantsForSamePrincipalAndRole(t *testing.T) {
	t.Parallel()

	alice := principal.NewUserRef("alice@example.com")
	oldCondition := condition.TemporaryConditionFor(time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	rm := &fakeResourceManager{
		policy: clients.Policy{
			Bindings: []clients.PolicyBinding{
				{Role: "roles/browser", Members: []principal.Ref{alice}, Condition: &oldCondition},
				{Role: "roles/owner", Members: []principal.Ref{alice}}, // permanent binding, preserved
			},
		},
	}
	m := New(rm)
	m.sleep = func(time.Duration) {}

	start := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	err := m.ApplyTemporaryBinding(context.Background(), resource.NewProjectId("alpha"), alice, "roles/browser", start, 5*time.Minute, "case-1", PurgeExistingTemporaryBindings)
	require.NoError(t, err)
	require.Len(t, rm.policy.Bindings, 2)

	var sawPermanent, sawFreshGrant bool
	for _, b := range rm.policy.Bindings {
		if b.Role == "roles/owner" {
			sawPermanent = true
		}
		if b.Role == "roles/browser" && condition.IsActivated(b.Condition) {
			ok, evalErr := condition.Evaluate(b.Condition.Expression, start)
			require.NoError(t, evalErr)
			if ok {
				sawFreshGrant = true
			}
		}
	}
	require.True(t, sawPermanent)
	require.True(t, sawFreshGrant)
}

func TestApplyTemporaryBindingFailsIfIdenticalBindingExistsWithoutPurge(t *testing.T) {
	t.Parallel()

	alice := principal.NewUserRef("alice@example.com")
	start := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	existing := condition.TemporaryConditionFor(start, 5*time.Minute)
	rm := &fakeResourceManager{
		policy: clients.Policy{
			Bindings: []clients.PolicyBinding{
				{Role: "roles/browser", Members: []principal.Ref{alice}, Condition: &existing},
			},
		},
	}
	m := New(rm)
	m.sleep = func(time.Duration) {}

	err := m.ApplyTemporaryBinding(context.Background(), resource.NewProjectId("alpha"), alice, "roles/browser", start, 5*time.Minute, "case-1", FailIfBindingExists)
	require.True(t, errs.Is(err, errs.AlreadyExists))
}

func TestApplyTemporaryBindingRetriesOnEtagConflict(t *testing.T) {
	t.Parallel()

	rm := &fakeResourceManager{conflictsLeft: 2}
	m := New(rm)
	var slept []time.Duration
	m.sleep = func(d time.Duration) { slept = append(slept, d) }

	alice := principal.NewUserRef("alice@example.com")
	start := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	err := m.ApplyTemporaryBinding(context.Background(), resource.NewProjectId("alpha"), alice, "roles/browser", start, 5*time.Minute, "case-1", 0)
	require.NoError(t, err)
	require.Equal(t, 3, rm.setCalls)
	require.Len(t, slept, 2)
	require.Equal(t, 100*time.Millisecond, slept[0])
	require.Equal(t, 200*time.Millisecond, slept[1])
}

func TestApplyTemporaryBindingExhaustsRetries(t *testing.T) {
	t.Parallel()

	rm := &fakeResourceManager{conflictsLeft: 10}
	m := New(rm)
	m.sleep = func(time.Duration) {}

	alice := principal.NewUserRef("alice@example.com")
	start := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	err := m.ApplyTemporaryBinding(context.Background(), resource.NewProjectId("alpha"), alice, "roles/browser", start, 5*time.Minute, "case-1", 0)
	require.True(t, errs.Is(err, errs.ConflictRetryExhausted))
	require.Equal(t, maxRetries, rm.setCalls)
}
