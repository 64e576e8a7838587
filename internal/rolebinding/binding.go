// Package rolebinding models RoleBinding and its project-restricted variant,
// the unit that entitlements and activation requests are built from.
package rolebinding

import (
	"fmt"

	"github.com/terraconstructs/jitaccess/internal/resource"
)

// RoleBinding pairs a resource's full name with a role name. Two bindings
// are equal iff both fields are equal.
type RoleBinding struct {
	ResourceFullName string
	Role             string
}

// New builds a RoleBinding.
func New(resourceFullName, role string) RoleBinding {
	return RoleBinding{ResourceFullName: resourceFullName, Role: role}
}

func (b RoleBinding) Equal(other RoleBinding) bool {
	return b.ResourceFullName == other.ResourceFullName && b.Role == other.Role
}

// String renders the canonical "resource:role" form.
func (b RoleBinding) String() string {
	return fmt.Sprintf("%s:%s", b.ResourceFullName, b.Role)
}

// ProjectRoleBinding is a RoleBinding known to be restricted to a project
// resource; it carries the derived ProjectId so callers don't need to
// re-parse the resource's full name.
type ProjectRoleBinding struct {
	RoleBinding
	Project resource.ProjectId
}

// NewProject builds a ProjectRoleBinding for the given project and role.
func NewProject(project resource.ProjectId, role string) ProjectRoleBinding {
	return ProjectRoleBinding{
		RoleBinding: New(project.FullName(), role),
		Project:     project,
	}
}

// FromRoleBinding derives a ProjectRoleBinding from a RoleBinding whose
// resource is a project, or false if it is not.
func FromRoleBinding(b RoleBinding) (ProjectRoleBinding, bool) {
	projectId, ok := resource.ProjectIdFromFullName(b.ResourceFullName)
	if !ok {
		return ProjectRoleBinding{}, false
	}
	return ProjectRoleBinding{RoleBinding: b, Project: projectId}, true
}

func (b ProjectRoleBinding) Equal(other ProjectRoleBinding) bool {
	return b.RoleBinding.Equal(other.RoleBinding)
}
