package model

import "time"

// Account MySQL model for accounts table
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	AccountID string    `gorm:"column:account_id;type:varchar(64);not null;uniqueIndex:idx_account_id" json:"account_id"`
	Credits   float64   `gorm:"column:credits;not null;default:0" json:"credits"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "accounts"
}

// CreditTransaction MySQL model for credit_transactions table
type CreditTransaction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID   string    `gorm:"column:account_id;type:varchar(64);not null;index:idx_tx_account" json:"account_id"`
	WorkloadID  string    `gorm:"column:workload_id;type:varchar(64);not null;default:''" json:"workload_id"`
	Amount      float64   `gorm:"column:amount;not null" json:"amount"`
	Description string    `gorm:"column:description;type:varchar(255);not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;autoCreateTime;index:idx_tx_created_at" json:"created_at"`
}

// TableName specifies the table name for CreditTransaction
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
