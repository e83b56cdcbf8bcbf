package course

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/authz"
	"github.com/elimuhub/elimu/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("course not found")
	ErrSlugExists        = errors.New("a course with this slug already exists")
	ErrInvalidTransition = errors.New("invalid course status transition")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slg string, excludedCourses ...Course) error
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Title or Description.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, isFeatured *bool) (Course, error)
		// UpdateCourseStatus transitions a course's status with a single
		// conditional write: the update applies only if the course is still in
		// `from` at commit time. A racing loser gets ErrInvalidTransition, the
		// winner's write carries status, review note and timestamp atomically.
		UpdateCourseStatus(ctx context.Context, id string, from, to Status, note null.String, at time.Time) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error)
		Get(ctx context.Context, actor user.User, filter GetFilter) (Course, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error)
		SubmitForReview(ctx context.Context, actor user.User, id string) (Course, error)
		Resubmit(ctx context.Context, actor user.User, id string) (Course, error)
		Approve(ctx context.Context, actor user.User, id, note string) (Course, error)
		Reject(ctx context.Context, actor user.User, id, note string) (Course, error)
		Delete(ctx context.Context, actor user.User, ids ...string) error
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		usrRepo: usrRepo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if err := authz.CanPerform(actor, authz.CreateCourse, nil); err != nil {
		return Course{}, err
	}

	instructorID := actor.ID
	if nc.InstructorID != "" && actor.IsAdmin() {
		instructorID = nc.InstructorID
	}

	status := StatusDraft
	if nc.SubmitNow {
		status = StatusPending
	}

	slg, err := svc.makeSlug(ctx, nc.Title)
	if err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Title:        nc.Title,
		Slug:         slg,
		Description:  nc.Description,
		Price:        nc.Price,
		Image:        nc.Image,
		Status:       status,
		InstructorID: instructorID,
		CategoryID:   null.NewString(nc.CategoryID, nc.CategoryID != ""),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) Get(ctx context.Context, actor user.User, filter GetFilter) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, filter)
	if err != nil {
		return Course{}, err
	}
	if err = authz.CanPerform(actor, authz.ViewCourse, crs); err != nil {
		return Course{}, err
	}
	return crs, nil
}

// Query scopes results by role: admins see everything, instructors see their
// own courses, everyone else sees published courses only.
func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch {
	case actor.IsAdmin():
		// unrestricted
	case actor.IsInstructor():
		filter.InstructorID = actor.ID
	default:
		filter.Status = StatusPublished
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error) {
	orig, err := svc.repo.GetCourse(ctx, GetFilter{ID: id})
	if err != nil {
		return Course{}, err
	}
	if err = authz.CanPerform(actor, authz.UpdateCourse, orig); err != nil {
		return Course{}, err
	}

	crs := Course{
		ID:          id,
		Title:       uc.Title,
		Description: uc.Description,
		Image:       uc.Image,
		CategoryID:  null.NewString(uc.CategoryID, uc.CategoryID != ""),
		UpdatedAt:   time.Now().UTC(),
	}
	if uc.Price != nil {
		crs.Price = *uc.Price
	} else {
		crs.Price = orig.Price
	}
	if uc.Title != orig.Title {
		if crs.Slug, err = svc.makeSlug(ctx, uc.Title, orig); err != nil {
			return Course{}, err
		}
	} else {
		crs.Slug = orig.Slug
	}

	// IsFeatured can only be changed by admin
	isFeatured := uc.IsFeatured
	if !actor.IsAdmin() {
		isFeatured = nil
	}
	return svc.repo.UpdateCourse(ctx, crs, isFeatured)
}

// SubmitForReview moves an owning instructor's draft into the review queue.
func (svc *service) SubmitForReview(ctx context.Context, actor user.User, id string) (Course, error) {
	return svc.transitionOwned(ctx, actor, authz.SubmitCourse, id, StatusDraft, StatusPending)
}

// Resubmit puts a rejected course back into the review queue.
func (svc *service) Resubmit(ctx context.Context, actor user.User, id string) (Course, error) {
	return svc.transitionOwned(ctx, actor, authz.ResubmitCourse, id, StatusRejected, StatusPending)
}

func (svc *service) transitionOwned(ctx context.Context, actor user.User, action authz.Action, id string, from, to Status) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, GetFilter{ID: id})
	if err != nil {
		return Course{}, err
	}
	if err = authz.CanPerform(actor, action, crs); err != nil {
		return Course{}, err
	}
	if crs.Status != from || !from.CanTransitionTo(to) {
		return Course{}, ErrInvalidTransition
	}
	return svc.repo.UpdateCourseStatus(ctx, id, from, to, null.String{}, time.Now().UTC())
}

// Approve publishes a pending course and notifies its instructor. The
// notification is best-effort: it is dispatched after the transition has
// committed and its failure is logged, never surfaced.
func (svc *service) Approve(ctx context.Context, actor user.User, id, note string) (Course, error) {
	if err := authz.CanPerform(actor, authz.ApproveCourse, nil); err != nil {
		return Course{}, err
	}
	crs, err := svc.settle(ctx, id, StatusPublished, null.NewString(note, note != ""))
	if err != nil {
		return Course{}, err
	}
	svc.notifyInstructorOfApproval(ctx, crs)
	return crs, nil
}

// Reject declines a pending course. No notification is dispatched on
// rejection; only approvals notify the instructor.
func (svc *service) Reject(ctx context.Context, actor user.User, id, note string) (Course, error) {
	if err := authz.CanPerform(actor, authz.RejectCourse, nil); err != nil {
		return Course{}, err
	}
	return svc.settle(ctx, id, StatusRejected, null.NewString(note, note != ""))
}

// settle reads the course and consults the transition table before the
// conditional write; the write itself still decides a race, the loser gets
// ErrInvalidTransition either way.
func (svc *service) settle(ctx context.Context, id string, to Status, note null.String) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, GetFilter{ID: id})
	if err != nil {
		return Course{}, err
	}
	if !crs.Status.CanTransitionTo(to) {
		return Course{}, ErrInvalidTransition
	}
	return svc.repo.UpdateCourseStatus(ctx, id, crs.Status, to, note, time.Now().UTC())
}

func (svc *service) Delete(ctx context.Context, actor user.User, ids ...string) error {
	if err := authz.CanPerform(actor, authz.DeleteCourse, nil); err != nil {
		return err
	}
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

func (svc *service) notifyInstructorOfApproval(ctx context.Context, crs Course) {
	instr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: crs.InstructorID})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding instructor %s for approval notice: %v", crs.InstructorID, err), err)
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: instr.Name, Address: instr.Email}},
		Subject:      fmt.Sprintf("Your course %q is now live", crs.Title),
		TemplateName: "course-approved",
		TemplateData: struct {
			Course     Course
			Instructor user.User
		}{crs, instr},
	})
}

func (svc *service) makeSlug(ctx context.Context, title string, excluded ...Course) (string, error) {
	slg := slug.Make(title)
	err := svc.repo.CheckSlugUniqueness(ctx, slg, excluded...)
	if err == nil {
		return slg, nil
	}
	if errors.Cause(err) != ErrSlugExists {
		return "", err
	}
	// disambiguate with a short random suffix
	suffix := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return slg + "-" + suffix, nil
}
