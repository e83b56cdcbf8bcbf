package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/withdrawal"
)

type WithdrawalRepository struct {
	mu          sync.RWMutex
	withdrawals map[string]withdrawal.Withdrawal
}

var _ withdrawal.Repository = (*WithdrawalRepository)(nil) // interface compliance check

func NewWithdrawalRepository() *WithdrawalRepository {
	return &WithdrawalRepository{withdrawals: make(map[string]withdrawal.Withdrawal)}
}

func (repo *WithdrawalRepository) CreateWithdrawal(ctx context.Context, wdr withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	wdr.ID = uuid.New().String()
	repo.withdrawals[wdr.ID] = wdr
	return wdr, nil
}

func (repo *WithdrawalRepository) GetWithdrawal(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if wdr, ok := repo.withdrawals[id]; ok {
		return wdr, nil
	}
	return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
}

func (repo *WithdrawalRepository) QueryWithdrawals(ctx context.Context, filter *withdrawal.QueryFilter, ordering []core.DBOrdering) ([]withdrawal.Withdrawal, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	wdrs := make([]withdrawal.Withdrawal, 0, len(repo.withdrawals))
	for _, wdr := range repo.withdrawals {
		if matchWithdrawal(wdr, filter) {
			wdrs = append(wdrs, wdr)
		}
	}
	sort.Slice(wdrs, func(i, j int) bool {
		if !wdrs[i].RequestedAt.Equal(wdrs[j].RequestedAt) {
			return wdrs[i].RequestedAt.Before(wdrs[j].RequestedAt)
		}
		return wdrs[i].ID < wdrs[j].ID
	})
	return wdrs, nil
}

func matchWithdrawal(wdr withdrawal.Withdrawal, filter *withdrawal.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.InstructorID != "" && wdr.InstructorID != filter.InstructorID {
		return false
	}
	if filter.Status != "" && wdr.Status != filter.Status {
		return false
	}
	if filter.Method != "" && wdr.Method != filter.Method {
		return false
	}
	if !filter.RequestedFrom.IsZero() && wdr.RequestedAt.Before(filter.RequestedFrom) {
		return false
	}
	if !filter.RequestedTo.IsZero() && wdr.RequestedAt.After(filter.RequestedTo) {
		return false
	}
	return true
}

// UpdateWithdrawalStatus is a check-and-set under the write lock so
// concurrent callers race exactly as they would against the SQL conditional
// update.
func (repo *WithdrawalRepository) UpdateWithdrawalStatus(ctx context.Context, id string, from, to withdrawal.Status, processedAt null.Time) (withdrawal.Withdrawal, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	wdr, ok := repo.withdrawals[id]
	if !ok {
		return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
	}
	if wdr.Status != from {
		return withdrawal.Withdrawal{}, withdrawal.ErrInvalidTransition
	}
	wdr.Status = to
	wdr.ProcessedAt = processedAt
	wdr.UpdatedAt = time.Now().UTC()
	repo.withdrawals[id] = wdr
	return wdr, nil
}
