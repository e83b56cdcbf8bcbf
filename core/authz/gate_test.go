package authz

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core/user"
)

type ownedResource struct {
	ownerID string
}

func (r ownedResource) OwnerID() string { return r.ownerID }

func TestCanPerform(t *testing.T) {
	admin := user.User{ID: "a1", Roles: []string{user.RoleAdmin}}
	owner := user.User{ID: "o1", Roles: []string{user.RoleAdminOwner}}
	instructor := user.User{ID: "i1", Roles: []string{user.RoleInstructor}}
	otherInstructor := user.User{ID: "i2", Roles: []string{user.RoleInstructor}}
	student := user.User{ID: "s1", Roles: []string{user.RoleStudent}}
	blocked := user.User{ID: "b1", Roles: []string{user.RoleInstructor}, BlockedAt: null.TimeFrom(time.Now().UTC())}

	ownCourse := ownedResource{ownerID: instructor.ID}

	tests := []struct {
		name     string
		actor    user.User
		action   Action
		resource Resource
		wantErr  bool
	}{
		{name: "admin can approve", actor: admin, action: ApproveCourse},
		{name: "admin owner can approve", actor: owner, action: ApproveCourse},
		{name: "instructor cannot approve", actor: instructor, action: ApproveCourse, wantErr: true},
		{name: "instructor cannot approve own course", actor: instructor, action: ApproveCourse, resource: ownCourse, wantErr: true},
		{name: "student cannot approve", actor: student, action: ApproveCourse, wantErr: true},

		{name: "instructor can create course", actor: instructor, action: CreateCourse},
		{name: "student cannot create course", actor: student, action: CreateCourse, wantErr: true},

		{name: "instructor can update own course", actor: instructor, action: UpdateCourse, resource: ownCourse},
		{name: "instructor cannot update another's course", actor: otherInstructor, action: UpdateCourse, resource: ownCourse, wantErr: true},
		{name: "admin can update any course", actor: admin, action: UpdateCourse, resource: ownCourse},

		{name: "instructor can submit own course", actor: instructor, action: SubmitCourse, resource: ownCourse},
		{name: "instructor cannot submit another's course", actor: otherInstructor, action: SubmitCourse, resource: ownCourse, wantErr: true},
		{name: "instructor can resubmit own course", actor: instructor, action: ResubmitCourse, resource: ownCourse},

		{name: "everyone can view courses", actor: student, action: ViewCourse},

		{name: "instructor can request withdrawal", actor: instructor, action: CreateWithdrawal},
		{name: "admin cannot request withdrawal", actor: admin, action: CreateWithdrawal, wantErr: true},
		{name: "student cannot request withdrawal", actor: student, action: CreateWithdrawal, wantErr: true},
		{name: "admin can approve withdrawal", actor: admin, action: ApproveWithdrawal},
		{name: "admin can decline withdrawal", actor: admin, action: DeclineWithdrawal},
		{name: "instructor cannot decline withdrawal", actor: instructor, action: DeclineWithdrawal, wantErr: true},

		{name: "admin can block user", actor: admin, action: BlockUser},
		{name: "instructor cannot block user", actor: instructor, action: BlockUser, wantErr: true},

		{name: "unknown action is denied", actor: admin, action: Action("launch_rocket"), wantErr: true},
		{name: "blocked actor is denied mutations", actor: blocked, action: CreateCourse, wantErr: true},
		{name: "blocked actor may still view", actor: blocked, action: ViewCourse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanPerform(tt.actor, tt.action, tt.resource)
			if tt.wantErr {
				if err != ErrPermissionDenied {
					t.Errorf("CanPerform() = %v; want ErrPermissionDenied", err)
				}
			} else if err != nil {
				t.Errorf("CanPerform() = %v; want nil", err)
			}
		})
	}
}
