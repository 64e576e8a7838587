// Package activator implements the Activator: the orchestrator that turns
// an ActivationRequest into a materialized, time-bounded IAM binding,
// consulting the catalog and justification policy first and emitting
// notifications around the MPA path.
package activator

import (
	"context"
	"time"

	"github.com/terraconstructs/jitaccess/internal/activation"
	"github.com/terraconstructs/jitaccess/internal/catalog"
	"github.com/terraconstructs/jitaccess/internal/entitlement"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/justification"
	"github.com/terraconstructs/jitaccess/internal/mutate"
	"github.com/terraconstructs/jitaccess/internal/notify"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/rolebinding"
	"github.com/terraconstructs/jitaccess/internal/token"
)

// Activator orchestrates request construction, validation, IAM mutation,
// and notification.
type Activator struct {
	catalog       *catalog.Catalog
	justification *justification.Policy
	mutator       *mutate.Mutator
	emitter       *notify.Emitter
	signer        *token.Signer
	now           func() time.Time
}

// New builds an Activator over its collaborators. signer may be nil for a
// deployment that never issues MPA approval tokens through this process
// (e.g. one where CreateMpaRequest results are signed and verified out of
// process); SignApprovalToken panics if called on such an Activator.
func New(cat *catalog.Catalog, justificationPolicy *justification.Policy, mutator *mutate.Mutator, emitter *notify.Emitter, signer *token.Signer) *Activator {
	return &Activator{
		catalog:       cat,
		justification: justificationPolicy,
		mutator:       mutator,
		emitter:       emitter,
		signer:        signer,
		now:           time.Now,
	}
}

// SignApprovalToken encodes request as a signed, audience-scoped approval
// token, enforcing the catalog's configured ActivationRequestDuration
// ceiling on the token's issuedAt-to-expiresAt window.
func (a *Activator) SignApprovalToken(ctx context.Context, request activation.Request) (wireToken string, issuedAt, expiresAt time.Time, err error) {
	return a.signer.Sign(ctx, request, a.catalog.Options().ActivationRequestDuration)
}

// CreateJitRequest validates inputs and constructs a JIT self-approval
// request. It does not activate anything; call Activate with the result.
func (a *Activator) CreateJitRequest(
	user principal.UserId,
	bindings []rolebinding.ProjectRoleBinding,
	justificationText string,
	start time.Time,
	duration time.Duration,
) (activation.Request, error) {
	opts := a.catalog.Options()
	return activation.NewJitRequest(user, bindings, justificationText, start, duration, opts.MaxJitRolesPerSelfApproval, opts.ActivationDuration)
}

// CreateMpaRequest validates inputs (including the catalog's configured
// reviewer-count bounds) and constructs an MPA request. requestingUser is
// excluded from reviewers automatically.
func (a *Activator) CreateMpaRequest(
	user principal.UserId,
	bindings []rolebinding.ProjectRoleBinding,
	reviewers []principal.UserId,
	justificationText string,
	start time.Time,
	duration time.Duration,
) (activation.Request, error) {
	opts := a.catalog.Options()
	return activation.NewMpaRequest(user, bindings, reviewers, justificationText, start, duration, opts.MinReviewers, opts.MaxReviewers, opts.ActivationDuration)
}

// Activate runs the activation pipeline for a JIT self-approval request, or
// for an MPA request whose approval has already been verified by the
// caller: verify eligibility, check justification, apply each role's
// binding, and return the resulting Activation.
//
// The same pipeline also backs Approve; Approve additionally requires
// reviewer membership and applies with FailIfBindingExists as well.
func (a *Activator) Activate(ctx context.Context, request activation.Request) (activation.Activation, error) {
	return a.activate(ctx, request, mutate.PurgeExistingTemporaryBindings)
}

// Approve runs the MPA approval pipeline: approver must be one of
// request.Reviewers and must not be the requesting user, after which the
// activation pipeline runs with FailIfBindingExists added, and an
// ActivationApproved event is emitted. Because the purge of the requester's
// prior temporary grants runs before the existence check, replaying an
// approval replaces the earlier grant rather than failing with AlreadyExists.
func (a *Activator) Approve(ctx context.Context, approver principal.UserId, request activation.Request) (activation.Activation, error) {
	if request.Type != activation.Mpa {
		return activation.Activation{}, errs.New(errs.InvalidArgument, "approve is only valid for MPA requests")
	}
	if approver.Equal(request.RequestingUser) {
		return activation.Activation{}, errs.New(errs.AccessDenied, "a user may not approve their own request")
	}
	isReviewer := false
	for _, r := range request.Reviewers {
		if r.Equal(approver) {
			isReviewer = true
			break
		}
	}
	if !isReviewer {
		return activation.Activation{}, errs.Newf(errs.AccessDenied, "%s is not a reviewer for request %s", approver, request.ID)
	}

	result, err := a.activate(ctx, request, mutate.PurgeExistingTemporaryBindings|mutate.FailIfBindingExists)
	if err != nil {
		return activation.Activation{}, err
	}

	a.emitter.EmitActivationApproved(ctx, notify.ActivationApproved{
		Request:    request,
		Approver:   approver,
		Activation: result,
	})
	return result, nil
}

func (a *Activator) activate(ctx context.Context, request activation.Request, mutatorOptions mutate.Option) (activation.Activation, error) {
	activationType := entitlement.JIT
	if request.Type == activation.Mpa {
		activationType = entitlement.MPA
	}

	if err := a.catalog.VerifyUserCanActivate(ctx, request.RequestingUser, request.Entitlements, activationType); err != nil {
		return activation.Activation{}, err
	}
	if err := a.justification.Check(request.Justification, request.RequestingUser.Email); err != nil {
		return activation.Activation{}, err
	}

	principalRef := request.RequestingUser.Ref()
	for _, binding := range request.Entitlements {
		err := a.mutator.ApplyTemporaryBinding(
			ctx,
			binding.Project,
			principalRef,
			binding.Role,
			request.StartTime,
			request.Duration(),
			request.Justification,
			mutatorOptions,
		)
		if err != nil {
			return activation.Activation{}, err
		}
	}

	return activation.Activation{Request: request, ActivationTime: a.now()}, nil
}

// RequestMpaActivation emits the RequestActivation notification for a newly
// created MPA request, failing closed with FeatureNotAvailable if no sink
// can deliver it.
func (a *Activator) RequestMpaActivation(ctx context.Context, request activation.Request, approvalUrl string) error {
	return a.emitter.EmitRequestActivation(ctx, notify.RequestActivation{
		Request:     request,
		ApprovalUrl: approvalUrl,
		ExpiresAt:   request.EndTime,
	})
}
