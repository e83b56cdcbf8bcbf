package withdrawal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
)

// Status is a withdrawal request's position in the payout workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusProcessed Status = "processed"
)

var AllStatuses = []Status{StatusPending, StatusApproved, StatusDeclined, StatusProcessed}

// statusTransitions enumerates every legal transition; declined and
// processed are terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusDeclined},
	StatusApproved:  {StatusProcessed},
	StatusDeclined:  {},
	StatusProcessed: {},
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

func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// Withdrawal is an instructor's request to cash out accumulated course
// revenue. Amount is immutable after creation; ProcessedAt is set when an
// admin settles the request (approve/decline) and refreshed when the
// transfer completes.
type Withdrawal struct {
	ID             string          `json:"id"`
	InstructorID   string          `json:"instructor_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	Method         string          `json:"method"`
	AccountDetails json.RawMessage `json:"account_details"`
	RequestedAt    time.Time       `json:"requested_at"` // UTC
	ProcessedAt    null.Time       `json:"processed_at"`
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

// OwnerID satisfies the authorization gate's Resource.
func (w Withdrawal) OwnerID() string { return w.InstructorID }

// NewWithdrawal contains information needed to create a withdrawal request.
type NewWithdrawal struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,len=3,alpha"`
	Method         string          `json:"method" validate:"required"`
	AccountDetails json.RawMessage `json:"account_details"`
}

func (nw *NewWithdrawal) Validate(validate *validator.Validate) error {
	nw.Currency = strings.ToUpper(core.CleanString(nw.Currency))
	nw.Method = core.CleanString(nw.Method, true /* lower */)

	if err := validate.Struct(nw); err != nil {
		return err
	}
	if nw.Amount.Sign() <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount must be positive"})
	}
	return nil
}

type QueryFilter struct {
	InstructorID  string    `query:"instructor_id"`
	Status        Status    `query:"status"`
	Method        string    `query:"method"`
	RequestedFrom time.Time `query:"requested_from"`
	RequestedTo   time.Time `query:"requested_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.InstructorID == "" && qf.Status == "" && qf.Method == "" &&
		qf.RequestedFrom.IsZero() && qf.RequestedTo.IsZero()
}
