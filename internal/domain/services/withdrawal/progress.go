package withdrawal

import (
	"github.com/invest-portal/portal_service/internal/domain/entities"
)

// StepState is the display state of a single lifecycle step
type StepState string

const (
	StepStateCompleted StepState = "completed"
	StepStateCurrent   StepState = "current"
	StepStateUpcoming  StepState = "upcoming"
	StepStateRejected  StepState = "rejected"
)

// Step is one entry in the ordered lifecycle sequence shown to the investor
type Step struct {
	Label string    `json:"label"`
	State StepState `json:"state"`
}

// Projection is the display rendering of a withdrawal's lifecycle position
type Projection struct {
	Steps      []Step `json:"steps"`
	Percentage int    `json:"percentage"`
}

// statusPercentages maps status to display percentage. The status-derived
// value takes precedence over the stored progress field, which is
// informational only.
var statusPercentages = map[entities.WithdrawalStatus]int{
	entities.WithdrawalStatusPending:          25,
	entities.WithdrawalStatusApproved:         50,
	entities.WithdrawalStatusProcessing:       75,
	entities.WithdrawalStatusSentToBlockchain: 75,
	entities.WithdrawalStatusCredited:         100,
}

func stepLabels(t entities.WithdrawalType) []string {
	if t == entities.WithdrawalTypeCrypto {
		return []string{"Pending", "Approved", "Sent to Blockchain", "Credited"}
	}
	return []string{"Pending", "Approved", "Credited"}
}

// stepIndex locates the step a status corresponds to within the sequence
// for the given destination type
func stepIndex(t entities.WithdrawalType, s entities.WithdrawalStatus) int {
	last := len(stepLabels(t)) - 1
	switch s {
	case entities.WithdrawalStatusPending:
		return 0
	case entities.WithdrawalStatusApproved:
		return 1
	case entities.WithdrawalStatusSentToBlockchain:
		return 2
	case entities.WithdrawalStatusProcessing:
		if t == entities.WithdrawalTypeCrypto {
			return 2
		}
		return 1
	case entities.WithdrawalStatusCredited:
		return last
	default:
		return 0
	}
}

// Project maps a withdrawal to its ordered step sequence and display
// percentage. Rejection-family statuses short-circuit to 0% and mark the
// furthest-reached step as rejected instead of advancing.
func Project(req *entities.WithdrawalRequest) Projection {
	labels := stepLabels(req.Type)
	steps := make([]Step, len(labels))

	if req.Status.IsRejectionFamily() {
		// The step at the point of rejection: approval is the furthest a
		// request can have reached before a rejection-family transition.
		reached := 0
		if req.ApprovedAt != nil {
			reached = 1
		}
		for i, label := range labels {
			state := StepStateUpcoming
			if i < reached {
				state = StepStateCompleted
			} else if i == reached {
				state = StepStateRejected
			}
			steps[i] = Step{Label: label, State: state}
		}
		return Projection{Steps: steps, Percentage: 0}
	}

	current := stepIndex(req.Type, req.Status)
	credited := req.Status == entities.WithdrawalStatusCredited
	for i, label := range labels {
		state := StepStateUpcoming
		switch {
		case i < current || (i == current && credited):
			state = StepStateCompleted
		case i == current:
			state = StepStateCurrent
		}
		steps[i] = Step{Label: label, State: state}
	}

	pct, ok := statusPercentages[req.Status]
	if !ok {
		pct = req.Progress
	}
	return Projection{Steps: steps, Percentage: pct}
}
