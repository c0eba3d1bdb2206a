package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the status of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending          WithdrawalStatus = "pending"            // Submitted, awaiting review
	WithdrawalStatusApproved         WithdrawalStatus = "approved"           // Approved, balance debited
	WithdrawalStatusProcessing       WithdrawalStatus = "processing"         // Transfer in flight
	WithdrawalStatusSentToBlockchain WithdrawalStatus = "sent_to_blockchain" // Crypto only: broadcast on-chain
	WithdrawalStatusCredited         WithdrawalStatus = "credited"           // Terminal: funds delivered
	WithdrawalStatusRejected         WithdrawalStatus = "rejected"           // Terminal: declined by operator
	WithdrawalStatusRefunded         WithdrawalStatus = "refunded"           // Terminal: returned after review
	WithdrawalStatusCancelled        WithdrawalStatus = "cancelled"          // Terminal: withdrawn by investor
)

// ValidWithdrawalStatuses contains all valid withdrawal statuses
var ValidWithdrawalStatuses = map[WithdrawalStatus]bool{
	WithdrawalStatusPending:          true,
	WithdrawalStatusApproved:         true,
	WithdrawalStatusProcessing:       true,
	WithdrawalStatusSentToBlockchain: true,
	WithdrawalStatusCredited:         true,
	WithdrawalStatusRejected:         true,
	WithdrawalStatusRefunded:         true,
	WithdrawalStatusCancelled:        true,
}

// ValidWithdrawalTransitions defines allowed status transitions.
// Rejection-family statuses are reachable only from pending or approved,
// never from credited.
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:          {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusRefunded, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:         {WithdrawalStatusProcessing, WithdrawalStatusSentToBlockchain, WithdrawalStatusCredited, WithdrawalStatusRejected, WithdrawalStatusRefunded, WithdrawalStatusCancelled},
	WithdrawalStatusProcessing:       {WithdrawalStatusSentToBlockchain, WithdrawalStatusCredited},
	WithdrawalStatusSentToBlockchain: {WithdrawalStatusCredited},
	WithdrawalStatusCredited:         {}, // Terminal
	WithdrawalStatusRejected:         {}, // Terminal
	WithdrawalStatusRefunded:         {}, // Terminal
	WithdrawalStatusCancelled:        {}, // Terminal
}

// legacy spellings observed in stored records, normalised on read
var legacyStatusAliases = map[string]WithdrawalStatus{
	"sent":      WithdrawalStatusSentToBlockchain,
	"complete":  WithdrawalStatusCredited,
	"completed": WithdrawalStatusCredited,
	"canceled":  WithdrawalStatusCancelled,
}

// NormalizeWithdrawalStatus maps a free-form stored status value to the
// canonical enum. Historic records carry mixed casing ("Approved", "Refunded")
// and alternate spellings ("sent", "completed", "canceled").
func NormalizeWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := legacyStatusAliases[s]; ok {
		return alias, nil
	}
	status := WithdrawalStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
	}
	return status, nil
}

// IsValid checks if the status is a member of the canonical enum
func (s WithdrawalStatus) IsValid() bool {
	return ValidWithdrawalStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s WithdrawalStatus) IsTerminal() bool {
	return s.IsValid() && len(ValidWithdrawalTransitions[s]) == 0
}

// IsRejectionFamily returns true for statuses that short-circuit the flow
func (s WithdrawalStatus) IsRejectionFamily() bool {
	return s == WithdrawalStatusRejected || s == WithdrawalStatusRefunded || s == WithdrawalStatusCancelled
}

// ValidateTransition validates and returns error if transition is invalid
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, string(newStatus))
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s, newStatus)
	}
	return nil
}

// StoredProgress returns the progress value persisted alongside a status.
// A freshly created pending request is stored at 0; the projector derives
// the display percentage independently.
func (s WithdrawalStatus) StoredProgress() int {
	switch s {
	case WithdrawalStatusApproved:
		return 50
	case WithdrawalStatusProcessing, WithdrawalStatusSentToBlockchain:
		return 75
	case WithdrawalStatusCredited:
		return 100
	default:
		return 0
	}
}

// WithdrawalType discriminates the destination variant
type WithdrawalType string

const (
	WithdrawalTypeBank   WithdrawalType = "bank"
	WithdrawalTypeCrypto WithdrawalType = "crypto"
)

// IsValid checks if the withdrawal type is known
func (t WithdrawalType) IsValid() bool {
	return t == WithdrawalTypeBank || t == WithdrawalTypeCrypto
}

// BankAccount is the bank destination variant
type BankAccount struct {
	AccountName   string  `json:"account_name"`
	AccountNumber string  `json:"account_number"`
	BankName      string  `json:"bank_name"`
	Country       string  `json:"country"`
	IBAN          *string `json:"iban,omitempty"`
	SwiftCode     *string `json:"swift_code,omitempty"`
}

// CryptoWallet is the crypto destination variant
type CryptoWallet struct {
	Address  string  `json:"address"`
	Network  string  `json:"network"`
	CoinType string  `json:"coin_type"`
	Label    *string `json:"label,omitempty"`
}

// Destination is a tagged union: exactly one variant is populated and it
// must agree with the type tag.
type Destination struct {
	Type   WithdrawalType `json:"type"`
	Bank   *BankAccount   `json:"bank,omitempty"`
	Crypto *CryptoWallet  `json:"crypto,omitempty"`
}

// Validate checks the union invariant
func (d Destination) Validate() error {
	switch d.Type {
	case WithdrawalTypeBank:
		if d.Bank == nil || d.Crypto != nil {
			return fmt.Errorf("%w: bank destination requires bank details only", ErrInvalidDestination)
		}
		if d.Bank.AccountNumber == "" || d.Bank.BankName == "" || d.Bank.Country == "" {
			return fmt.Errorf("%w: account number, bank name and country are required", ErrInvalidDestination)
		}
	case WithdrawalTypeCrypto:
		if d.Crypto == nil || d.Bank != nil {
			return fmt.Errorf("%w: crypto destination requires wallet details only", ErrInvalidDestination)
		}
		if d.Crypto.Address == "" || d.Crypto.Network == "" || d.Crypto.CoinType == "" {
			return fmt.Errorf("%w: address, network and coin type are required", ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: unknown withdrawal type %q", ErrInvalidDestination, string(d.Type))
	}
	return nil
}

// Value implements driver.Valuer so destinations persist as JSONB
func (d Destination) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *Destination) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan destination from %T", src)
	}
}

// WithdrawalRequest represents an investor withdrawal through its lifecycle
type WithdrawalRequest struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	InvestorID    uuid.UUID        `json:"investor_id" db:"investor_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	PlatformFee   decimal.Decimal  `json:"platform_fee" db:"platform_fee"`
	NetAmount     decimal.Decimal  `json:"net_amount" db:"net_amount"`
	FeePercentage decimal.Decimal  `json:"fee_percentage" db:"fee_percentage"`
	Currency      string           `json:"currency" db:"currency"`
	Type          WithdrawalType   `json:"type" db:"type"`
	Destination   Destination      `json:"destination" db:"destination"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	Progress      int              `json:"progress" db:"progress"`

	ProcessedBy *string `json:"processed_by,omitempty" db:"processed_by"`
	Reason      *string `json:"reason,omitempty" db:"reason"`
	Notes       *string `json:"notes,omitempty" db:"notes"`

	// Crypto only: set once funds are broadcast on-chain
	TransactionHash *string    `json:"transaction_hash,omitempty" db:"transaction_hash"`
	HashAttachedAt  *time.Time `json:"hash_attached_at,omitempty" db:"hash_attached_at"`
	HashAttachedBy  *string    `json:"hash_attached_by,omitempty" db:"hash_attached_by"`

	// Bank only: MT103-equivalent settlement confirmation artifact
	SettlementGenerated   bool       `json:"settlement_generated" db:"settlement_generated"`
	SettlementGeneratedAt *time.Time `json:"settlement_generated_at,omitempty" db:"settlement_generated_at"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// FeeBreakdown is the deterministic fee computation for a withdrawal amount
type FeeBreakdown struct {
	Amount        decimal.Decimal `json:"amount"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
}

// SubmitWithdrawalRequest is the inbound payload for creating a withdrawal
type SubmitWithdrawalRequest struct {
	InvestorID  uuid.UUID       `json:"investor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Destination Destination     `json:"destination"`
}

// SubmitWithdrawalResponse is returned to the investor on submission
type SubmitWithdrawalResponse struct {
	WithdrawalID uuid.UUID        `json:"withdrawal_id"`
	Status       WithdrawalStatus `json:"status"`
	Breakdown    FeeBreakdown     `json:"breakdown"`
}

// WithdrawalEvent is published on every status transition
type WithdrawalEvent struct {
	WithdrawalID uuid.UUID        `json:"withdrawal_id"`
	InvestorID   uuid.UUID        `json:"investor_id"`
	Status       WithdrawalStatus `json:"status"`
	Progress     int              `json:"progress"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
