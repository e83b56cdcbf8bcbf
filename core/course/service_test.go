package course_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/authz"
	"github.com/elimuhub/elimu/core/course"
	"github.com/elimuhub/elimu/core/user"
	emailsvc "github.com/elimuhub/elimu/services/email"
	"github.com/elimuhub/elimu/storage/database/inmem"
	testutil "github.com/elimuhub/elimu/tests"
)

type courseFixture struct {
	svc     course.Service
	repo    *inmem.CourseRepository
	usrRepo *inmem.UserRepository
	conf    *core.Config
}

func newCourseFixture(t *testing.T) *courseFixture {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	repo := inmem.NewCourseRepository()
	usrRepo := inmem.NewUserRepository()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return &courseFixture{
		svc:     course.NewService(repo, usrRepo, mailSvc, logger, conf),
		repo:    repo,
		usrRepo: usrRepo,
		conf:    conf,
	}
}

func TestService_Create(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	instructor := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, fix.usrRepo, "Sam", "sam", "sam@test.cd", "", []string{user.RoleStudent}, true)

	t.Run("instructor creates a draft", func(t *testing.T) {
		crs, err := fix.svc.Create(ctx, instructor, course.NewCourse{
			Title: "Intro to Go", Description: "Learn Go", Price: decimal.NewFromInt(30),
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if crs.Status != course.StatusDraft {
			t.Errorf("Status = %v; want %v", crs.Status, course.StatusDraft)
		}
		if crs.InstructorID != instructor.ID {
			t.Errorf("InstructorID = %v; want %v", crs.InstructorID, instructor.ID)
		}
		if crs.Slug != "intro-to-go" {
			t.Errorf("Slug = %v; want intro-to-go", crs.Slug)
		}
	})

	t.Run("submit_now skips draft", func(t *testing.T) {
		crs, err := fix.svc.Create(ctx, instructor, course.NewCourse{
			Title: "Advanced Go", Price: decimal.NewFromInt(60), SubmitNow: true,
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if crs.Status != course.StatusPending {
			t.Errorf("Status = %v; want %v", crs.Status, course.StatusPending)
		}
	})

	t.Run("duplicate title gets a disambiguated slug", func(t *testing.T) {
		crs, err := fix.svc.Create(ctx, instructor, course.NewCourse{
			Title: "Intro to Go", Price: decimal.NewFromInt(30),
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if crs.Slug == "intro-to-go" || !strings.HasPrefix(crs.Slug, "intro-to-go-") {
			t.Errorf("Slug = %v; want a disambiguated intro-to-go-*", crs.Slug)
		}
	})

	t.Run("admin may assign another instructor", func(t *testing.T) {
		crs, err := fix.svc.Create(ctx, admin, course.NewCourse{
			Title: "Admin Made", Price: decimal.NewFromInt(10), InstructorID: instructor.ID,
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if crs.InstructorID != instructor.ID {
			t.Errorf("InstructorID = %v; want %v", crs.InstructorID, instructor.ID)
		}
	})

	t.Run("instructor cannot assign another instructor", func(t *testing.T) {
		crs, err := fix.svc.Create(ctx, instructor, course.NewCourse{
			Title: "Mine Anyway", Price: decimal.NewFromInt(10), InstructorID: admin.ID,
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if crs.InstructorID != instructor.ID {
			t.Errorf("InstructorID = %v; want %v", crs.InstructorID, instructor.ID)
		}
	})

	t.Run("student is denied", func(t *testing.T) {
		_, err := fix.svc.Create(ctx, student, course.NewCourse{Title: "Nope", Price: decimal.NewFromInt(5)})
		if errors.Cause(err) != authz.ErrPermissionDenied {
			t.Errorf("Create() = %v; want ErrPermissionDenied", err)
		}
	})
}

func TestService_reviewWorkflow(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	instructor := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)
	rival := testutil.CreateUser(t, fix.usrRepo, "Rival", "rival", "rival@test.cd", "", []string{user.RoleInstructor}, true)

	t.Run("draft to published via review", func(t *testing.T) {
		crs := testutil.CreateCourse(t, fix.repo, "Go Basics", "go-basics", instructor.ID, course.StatusDraft)

		crs, err := fix.svc.SubmitForReview(ctx, instructor, crs.ID)
		if err != nil {
			t.Fatalf("SubmitForReview() failed: %v", err)
		}
		if crs.Status != course.StatusPending {
			t.Fatalf("Status = %v; want %v", crs.Status, course.StatusPending)
		}

		crs, err = fix.svc.Approve(ctx, admin, crs.ID, "looks great")
		if err != nil {
			t.Fatalf("Approve() failed: %v", err)
		}
		if crs.Status != course.StatusPublished {
			t.Errorf("Status = %v; want %v", crs.Status, course.StatusPublished)
		}
		if crs.ReviewNote.String != "looks great" {
			t.Errorf("ReviewNote = %v; want %q", crs.ReviewNote, "looks great")
		}
	})

	t.Run("rejection stores the note and allows resubmission", func(t *testing.T) {
		crs := testutil.CreateCourse(t, fix.repo, "Rust Basics", "rust-basics", instructor.ID, course.StatusPending)

		crs, err := fix.svc.Reject(ctx, admin, crs.ID, "needs more depth")
		if err != nil {
			t.Fatalf("Reject() failed: %v", err)
		}
		if crs.Status != course.StatusRejected {
			t.Fatalf("Status = %v; want %v", crs.Status, course.StatusRejected)
		}
		if crs.ReviewNote.String != "needs more depth" {
			t.Errorf("ReviewNote = %v; want %q", crs.ReviewNote, "needs more depth")
		}

		crs, err = fix.svc.Resubmit(ctx, instructor, crs.ID)
		if err != nil {
			t.Fatalf("Resubmit() failed: %v", err)
		}
		if crs.Status != course.StatusPending {
			t.Errorf("Status = %v; want %v", crs.Status, course.StatusPending)
		}
	})

	t.Run("illegal transitions are rejected", func(t *testing.T) {
		draft := testutil.CreateCourse(t, fix.repo, "Draft", "draft-crs", instructor.ID, course.StatusDraft)
		published := testutil.CreateCourse(t, fix.repo, "Live", "live-crs", instructor.ID, course.StatusPublished)

		if _, err := fix.svc.Approve(ctx, admin, draft.ID, ""); errors.Cause(err) != course.ErrInvalidTransition {
			t.Errorf("Approve(draft) = %v; want ErrInvalidTransition", err)
		}
		if _, err := fix.svc.Reject(ctx, admin, draft.ID, "no"); errors.Cause(err) != course.ErrInvalidTransition {
			t.Errorf("Reject(draft) = %v; want ErrInvalidTransition", err)
		}
		if _, err := fix.svc.SubmitForReview(ctx, instructor, published.ID); errors.Cause(err) != course.ErrInvalidTransition {
			t.Errorf("SubmitForReview(published) = %v; want ErrInvalidTransition", err)
		}
		if _, err := fix.svc.Resubmit(ctx, instructor, draft.ID); errors.Cause(err) != course.ErrInvalidTransition {
			t.Errorf("Resubmit(draft) = %v; want ErrInvalidTransition", err)
		}
	})

	t.Run("only admins settle reviews", func(t *testing.T) {
		crs := testutil.CreateCourse(t, fix.repo, "Pending", "pending-crs", instructor.ID, course.StatusPending)

		if _, err := fix.svc.Approve(ctx, instructor, crs.ID, ""); errors.Cause(err) != authz.ErrPermissionDenied {
			t.Errorf("Approve() by instructor = %v; want ErrPermissionDenied", err)
		}
		if _, err := fix.svc.Reject(ctx, instructor, crs.ID, "meh"); errors.Cause(err) != authz.ErrPermissionDenied {
			t.Errorf("Reject() by instructor = %v; want ErrPermissionDenied", err)
		}
	})

	t.Run("only the owner submits", func(t *testing.T) {
		crs := testutil.CreateCourse(t, fix.repo, "Owned", "owned-crs", instructor.ID, course.StatusDraft)

		if _, err := fix.svc.SubmitForReview(ctx, rival, crs.ID); errors.Cause(err) != authz.ErrPermissionDenied {
			t.Errorf("SubmitForReview() by non-owner = %v; want ErrPermissionDenied", err)
		}
	})

	t.Run("unknown course", func(t *testing.T) {
		if _, err := fix.svc.Approve(ctx, admin, "4d5cdb0b-2a1c-4fd6-9f0e-000000000000", ""); errors.Cause(err) != course.ErrNotFound {
			t.Errorf("Approve(unknown) = %v; want ErrNotFound", err)
		}
	})
}

func TestService_Approve_notifiesInstructor(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	instructor := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)

	crs := testutil.CreateCourse(t, fix.repo, "Go Basics", "go-basics", instructor.ID, course.StatusPending)
	if _, err := fix.svc.Approve(ctx, admin, crs.ID, ""); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}

	msgs := emailsvc.GetSentMessages()
	if len(msgs) != 1 {
		t.Fatalf("sent messages = %d; want 1", len(msgs))
	}
	msg := msgs[0]
	if len(msg.To) != 1 || msg.To[0].Address != instructor.Email {
		t.Errorf("To = %v; want %v", msg.To, instructor.Email)
	}
	if !strings.Contains(msg.Subject, crs.Title) {
		t.Errorf("Subject = %q; want it to mention %q", msg.Subject, crs.Title)
	}
	if !strings.Contains(msg.TextContent, crs.Slug) {
		t.Errorf("TextContent misses the course link slug %q:\n%s", crs.Slug, msg.TextContent)
	}
}

func TestService_Reject_sendsNoNotification(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	instructor := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)

	crs := testutil.CreateCourse(t, fix.repo, "Go Basics", "go-basics", instructor.ID, course.StatusPending)
	if _, err := fix.svc.Reject(ctx, admin, crs.ID, "not yet"); err != nil {
		t.Fatalf("Reject() failed: %v", err)
	}

	if msgs := emailsvc.GetSentMessages(); len(msgs) != 0 {
		t.Errorf("sent messages = %d; want 0", len(msgs))
	}
}

func TestService_Approve_concurrent(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	instructor := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)

	crs := testutil.CreateCourse(t, fix.repo, "Go Basics", "go-basics", instructor.ID, course.StatusPending)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fix.svc.Approve(ctx, admin, crs.ID, "")
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch errors.Cause(err) {
		case nil:
			won++
		case course.ErrInvalidTransition:
			lost++
		default:
			t.Errorf("Approve() = %v; want nil or ErrInvalidTransition", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("won = %d, lost = %d; want exactly one of each", won, lost)
	}

	if msgs := emailsvc.GetSentMessages(); len(msgs) != 1 {
		t.Errorf("sent messages = %d; want exactly 1", len(msgs))
	}
}

func TestService_Query_scoping(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	jane := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)
	kofi := testutil.CreateUser(t, fix.usrRepo, "Kofi", "kofi", "kofi@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, fix.usrRepo, "Sam", "sam", "sam@test.cd", "", []string{user.RoleStudent}, true)

	testutil.CreateCourse(t, fix.repo, "Jane Draft", "jane-draft", jane.ID, course.StatusDraft)
	testutil.CreateCourse(t, fix.repo, "Jane Live", "jane-live", jane.ID, course.StatusPublished)
	testutil.CreateCourse(t, fix.repo, "Kofi Pending", "kofi-pending", kofi.ID, course.StatusPending)

	adminView, err := fix.svc.Query(ctx, admin, nil, nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(adminView) != 3 {
		t.Errorf("admin sees %d courses; want 3", len(adminView))
	}

	janeView, err := fix.svc.Query(ctx, jane, nil, nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(janeView) != 2 {
		t.Errorf("jane sees %d courses; want 2", len(janeView))
	}
	for _, crs := range janeView {
		if crs.InstructorID != jane.ID {
			t.Errorf("jane sees course owned by %v", crs.InstructorID)
		}
	}

	studentView, err := fix.svc.Query(ctx, student, nil, nil)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(studentView) != 1 || studentView[0].Status != course.StatusPublished {
		t.Errorf("student view = %v; want only the published course", studentView)
	}
}

func TestService_Update_ownership(t *testing.T) {
	fix := newCourseFixture(t)
	ctx := context.Background()
	validate, _ := testutil.NewValidators()

	admin := testutil.CreateUser(t, fix.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	jane := testutil.CreateUser(t, fix.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleInstructor}, true)
	kofi := testutil.CreateUser(t, fix.usrRepo, "Kofi", "kofi", "kofi@test.cd", "", []string{user.RoleInstructor}, true)

	crs := testutil.CreateCourse(t, fix.repo, "Intro to Go", "intro-to-go", jane.ID, course.StatusDraft)

	update := func(t *testing.T, actor user.User, uc course.UpdateCourse) (course.Course, error) {
		t.Helper()
		if err := uc.Validate(crs, validate); err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		return fix.svc.Update(ctx, actor, crs.ID, uc)
	}

	t.Run("owner updates their own course", func(t *testing.T) {
		got, err := update(t, jane, course.UpdateCourse{Description: "Now with generics"})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if got.Description != "Now with generics" {
			t.Errorf("Description = %q; want %q", got.Description, "Now with generics")
		}
	})

	t.Run("non-owner is denied", func(t *testing.T) {
		_, err := update(t, kofi, course.UpdateCourse{Description: "Hijacked"})
		if errors.Cause(err) != authz.ErrPermissionDenied {
			t.Errorf("Update() = %v; want ErrPermissionDenied", err)
		}
	})

	t.Run("admin updates any course", func(t *testing.T) {
		featured := true
		got, err := update(t, admin, course.UpdateCourse{IsFeatured: &featured})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if !got.IsFeatured {
			t.Error("IsFeatured not set by admin")
		}
	})

	t.Run("renaming refreshes the slug", func(t *testing.T) {
		got, err := update(t, jane, course.UpdateCourse{Title: "Advanced Go"})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if got.Slug != "advanced-go" {
			t.Errorf("Slug = %q; want %q", got.Slug, "advanced-go")
		}
	})
}
