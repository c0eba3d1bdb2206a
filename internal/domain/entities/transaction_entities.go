package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTrade      TransactionType = "trade"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeBonus      TransactionType = "bonus"
)

// TransactionStatus is the settlement state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// TransactionMetadata carries structured context for a ledger entry
type TransactionMetadata map[string]interface{}

// Value implements driver.Valuer
func (m TransactionMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *TransactionMetadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan transaction metadata from %T", src)
	}
}

// Transaction is an entry in the investor's ledger. Withdrawal approvals
// write exactly one entry with reference = withdrawal id; the reference is
// unique, which is what makes the approval debit idempotent.
type Transaction struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	InvestorID  uuid.UUID           `json:"investor_id" db:"investor_id"`
	Type        TransactionType     `json:"type" db:"type"`
	Amount      decimal.Decimal     `json:"amount" db:"amount"`
	Currency    string              `json:"currency" db:"currency"`
	Description string              `json:"description" db:"description"`
	Status      TransactionStatus   `json:"status" db:"status"`
	Reference   *string             `json:"reference,omitempty" db:"reference"`
	Metadata    TransactionMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// InvestorBalance is the investor's available balance row
type InvestorBalance struct {
	InvestorID uuid.UUID       `json:"investor_id" db:"investor_id"`
	Available  decimal.Decimal `json:"available" db:"available"`
	Currency   string          `json:"currency" db:"currency"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// SettlementDocument is the MT103-equivalent confirmation artifact generated
// for an approved bank withdrawal
type SettlementDocument struct {
	ID               uuid.UUID `json:"id" db:"id"`
	WithdrawalID     uuid.UUID `json:"withdrawal_id" db:"withdrawal_id"`
	DocumentType     string    `json:"document_type" db:"document_type"`
	MessageReference string    `json:"message_reference" db:"message_reference"`
	GeneratedAt      time.Time `json:"generated_at" db:"generated_at"`
}
