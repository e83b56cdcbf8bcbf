// Package authz is the role-based authorization gate consulted before any
// mutating workflow transition. Capabilities are a fixed table keyed by
// action; ownership rules are evaluated dynamically against the resource.
package authz

import (
	"github.com/pkg/errors"

	"github.com/elimuhub/elimu/core/user"
)

var ErrPermissionDenied = errors.New("permission denied")

// Action is a named capability an actor may hold.
type Action string

const (
	CreateCourse   Action = "create_course"
	UpdateCourse   Action = "update_course"
	DeleteCourse   Action = "delete_course"
	SubmitCourse   Action = "submit_course"
	ResubmitCourse Action = "resubmit_course"
	ApproveCourse  Action = "approve_course"
	RejectCourse   Action = "reject_course"
	ViewCourse     Action = "view_course"

	CreateWithdrawal  Action = "create_withdrawal"
	ApproveWithdrawal Action = "approve_withdrawal"
	DeclineWithdrawal Action = "decline_withdrawal"

	BlockUser Action = "block_user"
)

// Resource is anything an actor may own.
type Resource interface {
	OwnerID() string
}

type policy struct {
	// roles whose holders may always perform the action
	roles []string
	// roles whose holders may perform the action only on a resource they own
	ownerRoles []string
}

var policies = map[Action]policy{
	CreateCourse:   {roles: []string{user.RoleAdmin, user.RoleInstructor}},
	UpdateCourse:   {roles: []string{user.RoleAdmin}, ownerRoles: []string{user.RoleInstructor}},
	DeleteCourse:   {roles: []string{user.RoleAdmin}},
	SubmitCourse:   {roles: []string{user.RoleAdmin}, ownerRoles: []string{user.RoleInstructor}},
	ResubmitCourse: {roles: []string{user.RoleAdmin}, ownerRoles: []string{user.RoleInstructor}},
	ApproveCourse:  {roles: []string{user.RoleAdmin}},
	RejectCourse:   {roles: []string{user.RoleAdmin}},
	ViewCourse:     {roles: []string{user.RoleAdmin, user.RoleInstructor, user.RoleStudent}},

	CreateWithdrawal:  {roles: []string{user.RoleInstructor}},
	ApproveWithdrawal: {roles: []string{user.RoleAdmin}},
	DeclineWithdrawal: {roles: []string{user.RoleAdmin}},

	BlockUser: {roles: []string{user.RoleAdmin}},
}

// CanPerform decides whether actor may perform action on resource.
// It is a pure function of (actor roles, actor id, resource ownership):
// no side effects, unknown actions deny, blocked actors are denied every
// mutating action.
func CanPerform(actor user.User, action Action, resource Resource) error {
	pol, known := policies[action]
	if !known {
		return ErrPermissionDenied
	}
	if actor.IsBlocked() && action != ViewCourse {
		return ErrPermissionDenied
	}

	for _, role := range pol.roles {
		if actor.RoleStartsWith(role) {
			return nil
		}
	}
	if resource != nil && resource.OwnerID() == actor.ID {
		for _, role := range pol.ownerRoles {
			if actor.RoleStartsWith(role) {
				return nil
			}
		}
	}
	return ErrPermissionDenied
}
