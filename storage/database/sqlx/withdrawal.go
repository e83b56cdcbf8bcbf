package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/withdrawal"
)

const withdrawalCols = "id, instructor_id, amount, currency, status, method, account_details, requested_at, processed_at, updated_at"

var withdrawalSortFields = map[string]bool{
	"amount":       true,
	"currency":     true,
	"status":       true,
	"method":       true,
	"requested_at": true,
	"processed_at": true,
	"updated_at":   true,
}

type withdrawalRepository struct {
	db *sqlx.DB
}

var _ withdrawal.Repository = (*withdrawalRepository)(nil) // interface compliance check

func NewWithdrawalRepository(db *sql.DB) *withdrawalRepository {
	return &withdrawalRepository{db: sqlx.NewDb(db, "postgres")}
}

type withdrawalRow struct {
	ID             string          `db:"id"`
	InstructorID   string          `db:"instructor_id"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	Status         string          `db:"status"`
	Method         string          `db:"method"`
	AccountDetails []byte          `db:"account_details"`
	RequestedAt    time.Time       `db:"requested_at"`
	ProcessedAt    null.Time       `db:"processed_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (repo withdrawalRepository) toRow(wdr withdrawal.Withdrawal) withdrawalRow {
	return withdrawalRow{
		ID:             wdr.ID,
		InstructorID:   wdr.InstructorID,
		Amount:         wdr.Amount,
		Currency:       wdr.Currency,
		Status:         string(wdr.Status),
		Method:         wdr.Method,
		AccountDetails: []byte(wdr.AccountDetails),
		RequestedAt:    wdr.RequestedAt.UTC(),
		ProcessedAt:    wdr.ProcessedAt,
		UpdatedAt:      wdr.UpdatedAt.UTC(),
	}
}

func (repo withdrawalRepository) fromRow(r withdrawalRow) withdrawal.Withdrawal {
	return withdrawal.Withdrawal{
		ID:             r.ID,
		InstructorID:   r.InstructorID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Status:         withdrawal.Status(r.Status),
		Method:         r.Method,
		AccountDetails: json.RawMessage(r.AccountDetails),
		RequestedAt:    r.RequestedAt,
		ProcessedAt:    r.ProcessedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (repo withdrawalRepository) CreateWithdrawal(ctx context.Context, wdr withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	wdr.ID = uuid.New().String()
	r := repo.toRow(wdr)
	if r.AccountDetails == nil {
		r.AccountDetails = []byte("{}")
	}

	query := `
		INSERT INTO withdrawals (` + withdrawalCols + `)
		VALUES (:id, :instructor_id, :amount, :currency, :status, :method, :account_details, :requested_at, :processed_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, r); err != nil {
		return withdrawal.Withdrawal{}, errors.Wrap(err, "inserting withdrawal")
	}
	return repo.fromRow(r), nil
}

func (repo withdrawalRepository) GetWithdrawal(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
	}

	var r withdrawalRow
	query := "SELECT " + withdrawalCols + " FROM withdrawals WHERE id = $1"
	if err := repo.db.GetContext(ctx, &r, query, id); err != nil {
		if err == sql.ErrNoRows {
			return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
		}
		return withdrawal.Withdrawal{}, errors.Wrap(err, "finding withdrawal")
	}
	return repo.fromRow(r), nil
}

func (repo withdrawalRepository) QueryWithdrawals(ctx context.Context, filter *withdrawal.QueryFilter, ordering []core.DBOrdering) ([]withdrawal.Withdrawal, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.InstructorID != "" {
			conds = append(conds, "instructor_id = "+arg(filter.InstructorID))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(string(filter.Status)))
		}
		if filter.Method != "" {
			conds = append(conds, "method = "+arg(filter.Method))
		}
		if !filter.RequestedFrom.IsZero() {
			conds = append(conds, "requested_at >= "+arg(filter.RequestedFrom.UTC()))
		}
		if !filter.RequestedTo.IsZero() {
			conds = append(conds, "requested_at <= "+arg(filter.RequestedTo.UTC()))
		}
	}

	query := "SELECT " + withdrawalCols + " FROM withdrawals"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderClause(ordering, withdrawalSortFields)

	var rows []withdrawalRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying withdrawals")
	}

	wdrs := make([]withdrawal.Withdrawal, 0, len(rows))
	for _, r := range rows {
		wdrs = append(wdrs, repo.fromRow(r))
	}
	return wdrs, nil
}

// UpdateWithdrawalStatus applies the transition only when the withdrawal is
// still in `from`; losing a race yields ErrInvalidTransition, not an
// overwrite.
func (repo withdrawalRepository) UpdateWithdrawalStatus(ctx context.Context, id string, from, to withdrawal.Status, processedAt null.Time) (withdrawal.Withdrawal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
	}

	query := `
		UPDATE withdrawals
		SET status = $1, processed_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + withdrawalCols

	var r withdrawalRow
	err := repo.db.GetContext(ctx, &r, query, string(to), processedAt, time.Now().UTC(), id, string(from))
	if err == nil {
		return repo.fromRow(r), nil
	}
	if err != sql.ErrNoRows {
		return withdrawal.Withdrawal{}, errors.Wrap(err, "updating withdrawal status")
	}

	// no row updated: the withdrawal is gone or not in the expected state
	if _, err := repo.GetWithdrawal(ctx, id); err != nil {
		return withdrawal.Withdrawal{}, err
	}
	return withdrawal.Withdrawal{}, withdrawal.ErrInvalidTransition
}
