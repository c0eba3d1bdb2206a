package withdrawal

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/invest-portal/portal_service/internal/domain/entities"
)

// Config holds the withdrawal bounds and fee settings. Injected at
// construction time so environments and tests can override it.
type Config struct {
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	FeePercentage decimal.Decimal
	Currency      string
}

// DefaultConfig returns the platform defaults
func DefaultConfig() Config {
	return Config{
		MinAmount:     decimal.NewFromInt(100),
		MaxAmount:     decimal.NewFromInt(50000),
		FeePercentage: decimal.NewFromInt(15),
		Currency:      "USD",
	}
}

var oneHundred = decimal.NewFromInt(100)

// FeeCalculator computes the deterministic fee breakdown for an amount
type FeeCalculator struct {
	cfg Config
}

// NewFeeCalculator creates a fee calculator with the given config
func NewFeeCalculator(cfg Config) *FeeCalculator {
	return &FeeCalculator{cfg: cfg}
}

// Breakdown computes platform fee and net amount for a withdrawal amount.
// platformFee = amount * feePercentage / 100, netAmount = amount - platformFee,
// so platformFee + netAmount == amount always holds.
func (c *FeeCalculator) Breakdown(amount decimal.Decimal) entities.FeeBreakdown {
	fee := amount.Mul(c.cfg.FeePercentage).Div(oneHundred)
	return entities.FeeBreakdown{
		Amount:        amount,
		PlatformFee:   fee,
		NetAmount:     amount.Sub(fee),
		FeePercentage: c.cfg.FeePercentage,
	}
}

// AmountValidator checks a requested amount against the configured bounds
// and the investor's available balance
type AmountValidator struct {
	cfg Config
}

// NewAmountValidator creates an amount validator with the given config
func NewAmountValidator(cfg Config) *AmountValidator {
	return &AmountValidator{cfg: cfg}
}

// Validate applies the rules in order; the first failure wins.
func (v *AmountValidator) Validate(amount, availableBalance decimal.Decimal) error {
	if amount.LessThan(v.cfg.MinAmount) {
		return fmt.Errorf("%w: minimum withdrawal amount is %s %s",
			entities.ErrAmountBelowMinimum, v.cfg.MinAmount.String(), v.cfg.Currency)
	}
	if amount.GreaterThan(v.cfg.MaxAmount) {
		return fmt.Errorf("%w: maximum withdrawal amount is %s %s",
			entities.ErrAmountAboveMaximum, v.cfg.MaxAmount.String(), v.cfg.Currency)
	}
	if amount.GreaterThan(availableBalance) {
		return entities.ErrInsufficientFunds
	}
	return nil
}
