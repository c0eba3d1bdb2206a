package withdrawal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/invest-portal/portal_service/internal/domain/entities"
)

func bankWithdrawal(status entities.WithdrawalStatus) *entities.WithdrawalRequest {
	return &entities.WithdrawalRequest{
		Type:   entities.WithdrawalTypeBank,
		Status: status,
	}
}

func cryptoWithdrawal(status entities.WithdrawalStatus) *entities.WithdrawalRequest {
	return &entities.WithdrawalRequest{
		Type:   entities.WithdrawalTypeCrypto,
		Status: status,
	}
}

func TestProject_Percentages(t *testing.T) {
	tests := []struct {
		status entities.WithdrawalStatus
		want   int
	}{
		{entities.WithdrawalStatusPending, 25},
		{entities.WithdrawalStatusApproved, 50},
		{entities.WithdrawalStatusProcessing, 75},
		{entities.WithdrawalStatusSentToBlockchain, 75},
		{entities.WithdrawalStatusCredited, 100},
		{entities.WithdrawalStatusRejected, 0},
		{entities.WithdrawalStatusRefunded, 0},
		{entities.WithdrawalStatusCancelled, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := Project(cryptoWithdrawal(tt.status))
			assert.Equal(t, tt.want, p.Percentage)
		})
	}
}

func TestProject_BankSteps(t *testing.T) {
	p := Project(bankWithdrawal(entities.WithdrawalStatusApproved))

	assert.Len(t, p.Steps, 3)
	assert.Equal(t, "Pending", p.Steps[0].Label)
	assert.Equal(t, StepStateCompleted, p.Steps[0].State)
	assert.Equal(t, "Approved", p.Steps[1].Label)
	assert.Equal(t, StepStateCurrent, p.Steps[1].State)
	assert.Equal(t, "Credited", p.Steps[2].Label)
	assert.Equal(t, StepStateUpcoming, p.Steps[2].State)
}

func TestProject_CryptoStepsIncludeBlockchain(t *testing.T) {
	p := Project(cryptoWithdrawal(entities.WithdrawalStatusSentToBlockchain))

	assert.Len(t, p.Steps, 4)
	assert.Equal(t, "Sent to Blockchain", p.Steps[2].Label)
	assert.Equal(t, StepStateCurrent, p.Steps[2].State)
	assert.Equal(t, StepStateCompleted, p.Steps[0].State)
	assert.Equal(t, StepStateCompleted, p.Steps[1].State)
	assert.Equal(t, StepStateUpcoming, p.Steps[3].State)
}

func TestProject_CreditedCompletesAllSteps(t *testing.T) {
	p := Project(cryptoWithdrawal(entities.WithdrawalStatusCredited))

	for _, step := range p.Steps {
		assert.Equal(t, StepStateCompleted, step.State, "step %s", step.Label)
	}
	assert.Equal(t, 100, p.Percentage)
}

func TestProject_RejectedFromPending(t *testing.T) {
	p := Project(bankWithdrawal(entities.WithdrawalStatusRejected))

	assert.Equal(t, 0, p.Percentage)
	assert.Equal(t, StepStateRejected, p.Steps[0].State)
	assert.Equal(t, StepStateUpcoming, p.Steps[1].State)
	assert.Equal(t, StepStateUpcoming, p.Steps[2].State)
}

func TestProject_RejectedAfterApproval(t *testing.T) {
	now := time.Now()
	w := bankWithdrawal(entities.WithdrawalStatusRefunded)
	w.ApprovedAt = &now

	p := Project(w)

	assert.Equal(t, 0, p.Percentage)
	assert.Equal(t, StepStateCompleted, p.Steps[0].State)
	assert.Equal(t, StepStateRejected, p.Steps[1].State)
	assert.Equal(t, StepStateUpcoming, p.Steps[2].State)
}

func TestProject_ProcessingStepPerType(t *testing.T) {
	bank := Project(bankWithdrawal(entities.WithdrawalStatusProcessing))
	assert.Equal(t, StepStateCurrent, bank.Steps[1].State)

	crypto := Project(cryptoWithdrawal(entities.WithdrawalStatusProcessing))
	assert.Equal(t, StepStateCurrent, crypto.Steps[2].State)
}
