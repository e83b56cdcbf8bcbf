package withdrawal

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/authz"
	"github.com/elimuhub/elimu/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("withdrawal not found")
	ErrInvalidTransition = errors.New("invalid withdrawal status transition")
)

type (
	Repository interface {
		CreateWithdrawal(ctx context.Context, wdr Withdrawal) (Withdrawal, error)
		GetWithdrawal(ctx context.Context, id string) (Withdrawal, error)
		QueryWithdrawals(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Withdrawal, error)
		// UpdateWithdrawalStatus transitions a withdrawal's status with a
		// single conditional write: the update applies only if the withdrawal
		// is still in `from` at commit time. A racing loser gets
		// ErrInvalidTransition.
		UpdateWithdrawalStatus(ctx context.Context, id string, from, to Status, processedAt null.Time) (Withdrawal, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, nw NewWithdrawal) (Withdrawal, error)
		Get(ctx context.Context, actor user.User, id string) (Withdrawal, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Withdrawal, error)
		Approve(ctx context.Context, actor user.User, id string) (Withdrawal, error)
		Decline(ctx context.Context, actor user.User, id string) (Withdrawal, error)
		MarkProcessed(ctx context.Context, id string) (Withdrawal, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Create records an instructor's payout request and notifies the platform
// admins; the notification is best-effort and never fails the request.
func (svc *service) Create(ctx context.Context, actor user.User, nw NewWithdrawal) (Withdrawal, error) {
	if err := authz.CanPerform(actor, authz.CreateWithdrawal, nil); err != nil {
		return Withdrawal{}, err
	}

	now := time.Now().UTC()
	wdr := Withdrawal{
		InstructorID:   actor.ID,
		Amount:         nw.Amount,
		Currency:       nw.Currency,
		Status:         StatusPending,
		Method:         nw.Method,
		AccountDetails: nw.AccountDetails,
		RequestedAt:    now,
		UpdatedAt:      now,
	}
	wdr, err := svc.repo.CreateWithdrawal(ctx, wdr)
	if err != nil {
		return Withdrawal{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.conf.AdminEmail},
		Subject:      fmt.Sprintf("New withdrawal request from %s", actor.Name),
		TemplateName: "withdrawal-requested",
		TemplateData: struct {
			Withdrawal Withdrawal
			Instructor user.User
		}{wdr, actor},
	})
	return wdr, nil
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Withdrawal, error) {
	wdr, err := svc.repo.GetWithdrawal(ctx, id)
	if err != nil {
		return Withdrawal{}, err
	}
	// instructors may only see their own requests
	if !actor.IsAdmin() && wdr.InstructorID != actor.ID {
		return Withdrawal{}, authz.ErrPermissionDenied
	}
	return wdr, nil
}

// Query scopes results by role: admins see everything, instructors see
// their own requests only.
func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Withdrawal, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsAdmin() {
		filter.InstructorID = actor.ID
	}
	return svc.repo.QueryWithdrawals(ctx, filter, ordering)
}

// Approve settles a pending request in the instructor's favor and stamps
// the settlement time.
func (svc *service) Approve(ctx context.Context, actor user.User, id string) (Withdrawal, error) {
	if err := authz.CanPerform(actor, authz.ApproveWithdrawal, nil); err != nil {
		return Withdrawal{}, err
	}
	return svc.settle(ctx, id, StatusApproved)
}

// Decline settles a pending request against the instructor; declined is
// terminal.
func (svc *service) Decline(ctx context.Context, actor user.User, id string) (Withdrawal, error) {
	if err := authz.CanPerform(actor, authz.DeclineWithdrawal, nil); err != nil {
		return Withdrawal{}, err
	}
	return svc.settle(ctx, id, StatusDeclined)
}

// MarkProcessed records that the funds transfer for an approved request has
// completed; settlement itself happens outside this service.
func (svc *service) MarkProcessed(ctx context.Context, id string) (Withdrawal, error) {
	return svc.settle(ctx, id, StatusProcessed)
}

// settle reads the withdrawal and consults the transition table before the
// conditional write; the write itself still decides a race, the loser gets
// ErrInvalidTransition either way.
func (svc *service) settle(ctx context.Context, id string, to Status) (Withdrawal, error) {
	wdr, err := svc.repo.GetWithdrawal(ctx, id)
	if err != nil {
		return Withdrawal{}, err
	}
	if !wdr.Status.CanTransitionTo(to) {
		return Withdrawal{}, ErrInvalidTransition
	}
	return svc.repo.UpdateWithdrawalStatus(ctx, id, wdr.Status, to, null.TimeFrom(time.Now().UTC()))
}
