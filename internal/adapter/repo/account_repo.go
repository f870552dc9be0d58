package repo

import (
	"context"

	"stylebff/internal/domain"
	"stylebff/internal/infra"
	"stylebff/internal/sqlinline"
)

// AccountRepositoryPG implements domain.AccountRepository.
type AccountRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAccountRepository(sql infra.SQLExecutor) *AccountRepositoryPG {
	return &AccountRepositoryPG{sql: sql}
}

// GetAccount returns the account, or a zero-credit account when none exists yet.
func (r *AccountRepositoryPG) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	acct := domain.Account{ID: accountID}
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectAccountBalance, accountID).Scan(&acct.ID, &acct.Credits); err != nil {
		if infra.IsNoRows(err) {
			return &domain.Account{ID: accountID}, nil
		}
		return nil, err
	}
	return &acct, nil
}
