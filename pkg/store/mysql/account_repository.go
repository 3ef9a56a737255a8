package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slumber/internal/model"
)

// ErrAccountNotFound is returned by balance mutations on unknown accounts
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository handles credit balances
type AccountRepository struct {
	ds *Datastore
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(ds *Datastore) *AccountRepository {
	return &AccountRepository{ds: ds}
}

// Get retrieves an account by id, returning nil when it does not exist
func (r *AccountRepository) Get(ctx context.Context, id string) (*model.Account, error) {
	var row Account
	err := r.ds.DB(ctx).Where("account_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return ToAccountDomain(&row), nil
}

// Ensure creates the account with an initial balance if it does not exist yet
func (r *AccountRepository) Ensure(ctx context.Context, id string, initialCredits float64) error {
	return r.ds.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Account{AccountID: id, Credits: initialCredits}).Error
}

// Debit atomically subtracts amount from the balance and returns the new balance.
// The balance may become negative; callers decide what a depleted account means.
func (r *AccountRepository) Debit(ctx context.Context, id string, amount float64, workloadID, description string) (float64, error) {
	return r.apply(ctx, id, -amount, workloadID, description)
}

// Deposit atomically adds amount to the balance and returns the new balance
func (r *AccountRepository) Deposit(ctx context.Context, id string, amount float64, description string) (float64, error) {
	return r.apply(ctx, id, amount, "", description)
}

func (r *AccountRepository) apply(ctx context.Context, id string, delta float64, workloadID, description string) (float64, error) {
	var balance float64
	err := r.ds.ExecTx(ctx, func(ctx context.Context) error {
		db := r.ds.DB(ctx)
		res := db.Model(&Account{}).
			Where("account_id = ?", id).
			Update("credits", gorm.Expr("credits + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		if err := db.Create(&CreditTransaction{
			AccountID:   id,
			WorkloadID:  workloadID,
			Amount:      delta,
			Description: description,
		}).Error; err != nil {
			return err
		}

		var row Account
		if err := db.Select("credits").Where("account_id = ?", id).First(&row).Error; err != nil {
			return err
		}
		balance = row.Credits
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to change balance of account %s: %w", id, err)
	}
	return balance, nil
}

// Transactions lists the ledger entries of an account, newest first
func (r *AccountRepository) Transactions(ctx context.Context, id string, limit int) ([]*CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*CreditTransaction
	err := r.ds.DB(ctx).
		Where("account_id = ?", id).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, nil
}
