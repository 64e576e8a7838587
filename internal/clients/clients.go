// Package clients declares the narrow collaborator interfaces the core
// consumes. Every concrete cloud SDK client, transport, and notification
// delivery mechanism lives outside the core; this package exists only so
// the core can depend on behavior, not on any particular cloud SDK.
package clients

import (
	"context"
	"errors"

	"github.com/terraconstructs/jitaccess/internal/condition"
	"github.com/terraconstructs/jitaccess/internal/principal"
	"github.com/terraconstructs/jitaccess/internal/resource"
)

// ErrEtagConflict is the sentinel a ResourceManager.SetIamPolicy
// implementation wraps into its returned error when the write was rejected
// because policy.Etag no longer matches the stored policy. The mutator
// recognizes it (via errors.Is) and retries the read-modify-write cycle.
var ErrEtagConflict = errors.New("clients: iam policy etag conflict")

// Evaluation mirrors the policy analyzer's condition-evaluation verdict for
// a binding: whether the binding's condition is unconditionally true,
// unconditionally false, or depends on request context (CONDITIONAL) --
// which is exactly the verdict a sentinel marker always produces.
type Evaluation string

const (
	EvalTrue        Evaluation = "TRUE"
	EvalFalse       Evaluation = "FALSE"
	EvalConditional Evaluation = "CONDITIONAL"
)

// BindingResult is one IAM binding as surfaced by policy analysis: the
// resource it applies to, the role, its member list, its condition (if
// any), and how that condition evaluated.
type BindingResult struct {
	ResourceFullName string
	Role             string
	Members          []principal.Ref
	Condition        *condition.Condition
	Evaluation       Evaluation
}

// AnalysisResult is the result of a policy-analyzer query: the matching
// bindings plus any non-critical warnings the analyzer chose to surface
// rather than fail on.
type AnalysisResult struct {
	Bindings []BindingResult
	Warnings []string
}

// PolicyAnalyzer queries the cloud policy-analysis API. Both entitlement
// repository variants use it: the policy-analyzer variant for its analysis
// queries, the asset-inventory variant for GetEffectiveIamPolicies.
type PolicyAnalyzer interface {
	// FindAccessibleResourcesByUser returns bindings granting permissionFilter
	// (or any permission, if empty) to user within scope, optionally narrowed
	// by resourceFilter. expandResources controls whether the analyzer
	// expands resource hierarchies (folders/orgs) into their member projects.
	FindAccessibleResourcesByUser(
		ctx context.Context,
		scope resource.Id,
		user principal.UserId,
		permissionFilter string,
		resourceFilter string,
		expandResources bool,
	) (AnalysisResult, error)

	// FindPermissionedPrincipalsByResource returns bindings granting role on
	// resourceFullName within scope, for discovering who could approve an
	// MPA request.
	FindPermissionedPrincipalsByResource(
		ctx context.Context,
		scope resource.Id,
		resourceFullName string,
		role string,
	) (AnalysisResult, error)

	// GetEffectiveIamPolicies returns every policy bound to project or one of
	// its ancestors, each tagged with the resource it came from.
	GetEffectiveIamPolicies(ctx context.Context, scope resource.Id, project resource.ProjectId) ([]PolicyWithSource, error)
}

// PolicyWithSource pairs a Policy with the resource it is attached to, as
// returned when walking a project's ancestry for effective policies.
type PolicyWithSource struct {
	Source resource.Id
	Policy Policy
}

// PolicyBinding is one entry in an IAM policy document.
type PolicyBinding struct {
	Role      string
	Members   []principal.Ref
	Condition *condition.Condition
}

// Policy is a project's IAM policy: an ordered list of bindings plus the
// etag used for optimistic-concurrency writes.
type Policy struct {
	Bindings []PolicyBinding
	Etag     string
}

// ResourceManager wraps the cloud resource hierarchy and IAM policy
// read/write surface.
type ResourceManager interface {
	// GetProjectEffectiveTags returns the tags effectively bound to
	// resourceFullName (including inherited tags), used to evaluate the
	// requiredProjectTagPath policy option.
	GetProjectEffectiveTags(ctx context.Context, resourceFullName string) ([]resource.Tag, error)

	// SearchProjects evaluates query against the resource-manager project
	// search API, used as the availableProjectsQuery override.
	SearchProjects(ctx context.Context, query string) ([]resource.ProjectId, error)

	// GetIamPolicy reads a project's current IAM policy at policy version 3.
	GetIamPolicy(ctx context.Context, project resource.ProjectId) (Policy, error)

	// SetIamPolicy writes policy back conditionally on policy.Etag, using
	// reason as the IAM change justification header. Returns an etag-conflict
	// error the mutator recognizes and retries on.
	SetIamPolicy(ctx context.Context, project resource.ProjectId, policy Policy, reason string) error

	// GetAncestry returns project's ancestor chain, nearest first.
	GetAncestry(ctx context.Context, project resource.ProjectId) ([]resource.Id, error)
}

// DirectoryGroups wraps group-membership lookups.
type DirectoryGroups interface {
	// ListDirectGroupMemberships returns the groups user directly belongs to.
	ListDirectGroupMemberships(ctx context.Context, user principal.UserId) ([]principal.GroupId, error)

	// ListDirectGroupMembers returns the direct members of groupEmail.
	ListDirectGroupMembers(ctx context.Context, groupEmail principal.GroupId) ([]principal.UserId, error)
}

// JwtSigner signs approval-token payloads with a service account's key and
// exposes where that key's public JWKS can be fetched for verification. The
// core never holds a private key directly: signing happens through this
// remote collaborator (e.g. a cloud IAM credentials API), matching the way
// an approval token must be attributable to the issuing service identity.
type JwtSigner interface {
	// Sign returns a complete, signed JWT (header.payload.signature) encoding
	// payload as claims, signed as serviceAccount.
	Sign(ctx context.Context, serviceAccount string, payload map[string]any) (string, error)

	// JwksURL returns the URL serviceAccount's public keys are published at.
	JwksURL(serviceAccount string) string
}

// JWKSSource fetches the JSON Web Key Set published at a JwtSigner.JwksURL
// result, so the verifier can resolve the key a token claims to be signed
// with.
type JWKSSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SecretStore reads opaque secret material by path. ok is false if no
// secret exists at path.
type SecretStore interface {
	Get(ctx context.Context, path string) (value []byte, ok bool, err error)
}

// NotificationEvent is the payload handed to a NotificationSink. Concrete
// event types are defined by the notify package.
type NotificationEvent interface {
	EventName() string
}

// NotificationSink delivers a notification event out of band (mail,
// pub/sub, chat). A sink that cannot currently deliver reports CanSend as
// false rather than erroring, so the emitter can fall through to another
// sink or fail closed with FeatureNotAvailable.
type NotificationSink interface {
	CanSend(ctx context.Context) bool
	Send(ctx context.Context, event NotificationEvent) error
}
