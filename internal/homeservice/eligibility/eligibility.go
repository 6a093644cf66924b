// Package eligibility decides whether a technician may receive or accept work.
package eligibility

import (
	"context"
	"fmt"

	"fixitBack/internal/homeservice/repo"
)

// Reasons a technician fails a precondition.
const (
	ReasonKYCNotApproved     = "kyc_not_approved"
	ReasonProfileIncomplete  = "profile_incomplete"
	ReasonTrainingIncomplete = "training_incomplete"
	ReasonWorkNotApproved    = "work_not_approved"
	ReasonOffline            = "offline"
	ReasonMissingSkill       = "missing_skill"
)

const approved = "approved"

// Decision is the structured outcome of a check.
type Decision struct {
	Eligible bool
	Failed   []string
}

// Check evaluates every precondition for serviceID.
func Check(t repo.Technician, serviceID int64) Decision {
	failed := statusFailures(t)
	if !t.HasSkill(serviceID) {
		failed = append(failed, ReasonMissingSkill)
	}
	return Decision{Eligible: len(failed) == 0, Failed: failed}
}

// CheckResponder evaluates the preconditions that must still hold when a
// technician answers an offer. Skills are not re-checked: the offer was
// already scoped to the service.
func CheckResponder(t repo.Technician) Decision {
	failed := statusFailures(t)
	return Decision{Eligible: len(failed) == 0, Failed: failed}
}

func statusFailures(t repo.Technician) []string {
	var failed []string
	if t.KYCStatus != approved {
		failed = append(failed, ReasonKYCNotApproved)
	}
	if !t.ProfileComplete {
		failed = append(failed, ReasonProfileIncomplete)
	}
	if !t.TrainingCompleted {
		failed = append(failed, ReasonTrainingIncomplete)
	}
	if t.WorkStatus != approved {
		failed = append(failed, ReasonWorkNotApproved)
	}
	if !t.IsOnline {
		failed = append(failed, ReasonOffline)
	}
	return failed
}

// TechnicianSource lists technicians that already pass the status flags.
type TechnicianSource interface {
	ListApprovedOnline(ctx context.Context) ([]repo.Technician, error)
}

// Filter narrows the technician pool for a service.
type Filter struct {
	source TechnicianSource
}

func NewFilter(source TechnicianSource) *Filter {
	return &Filter{source: source}
}

// EligibleFor returns ids of technicians eligible for serviceID in id order.
// No match yields an empty slice and a nil error.
func (f *Filter) EligibleFor(ctx context.Context, serviceID int64) ([]int64, error) {
	techs, err := f.source.ListApprovedOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	ids := make([]int64, 0, len(techs))
	for _, t := range techs {
		if Check(t, serviceID).Eligible {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}
