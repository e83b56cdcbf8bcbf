package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
)

// Status is a course's position in the review workflow.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

var AllStatuses = []Status{StatusDraft, StatusPending, StatusPublished, StatusRejected}

// statusTransitions enumerates every legal transition; anything absent is
// illegal. Rejected courses may be resubmitted for review by their owner.
var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusPending},
	StatusPending:   {StatusPublished, StatusRejected},
	StatusPublished: {},
	StatusRejected:  {StatusPending},
}

func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Course struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	Status       Status          `json:"status"`
	IsFeatured   bool            `json:"is_featured"`
	InstructorID string          `json:"instructor_id"`
	CategoryID   null.String     `json:"category_id"`
	ReviewNote   null.String     `json:"review_note"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
}

// OwnerID satisfies the authorization gate's Resource.
func (c Course) OwnerID() string { return c.InstructorID }

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string          `json:"title" validate:"required"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	CategoryID   string          `json:"category_id"`
	InstructorID string          `json:"instructor_id"` // admin only; defaults to the actor
	SubmitNow    bool            `json:"submit_now"`    // skip draft, go straight to review
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.Price.Sign() < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "price", Error: "price cannot be negative"})
	}
	return nil
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields keep their current value.
type UpdateCourse struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       string           `json:"image"`
	CategoryID  string           `json:"category_id"`
	IsFeatured  *bool            `json:"is_featured"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}

	desc := core.CleanString(uc.Description)
	if desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Price != nil && uc.Price.Sign() < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "price", Error: "price cannot be negative"})
	}
	return nil
}

// GetFilter looks up a single Course; the first non-empty field wins.
type GetFilter struct {
	ID   string
	Slug string
}

type QueryFilter struct {
	Search       string    `query:"search"`
	Status       Status    `query:"status"`
	InstructorID string    `query:"instructor_id"`
	IsFeatured   *bool     `query:"is_featured"`
	CreatedFrom  time.Time `query:"created_from"`
	CreatedTo    time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.InstructorID == "" &&
		qf.IsFeatured == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
