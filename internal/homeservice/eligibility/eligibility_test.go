package eligibility

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixitBack/internal/homeservice/repo"
)

func ready(id int64, skills ...int64) repo.Technician {
	return repo.Technician{
		ID:                id,
		KYCStatus:         "approved",
		ProfileComplete:   true,
		TrainingCompleted: true,
		WorkStatus:        "approved",
		IsOnline:          true,
		ServiceIDs:        skills,
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*repo.Technician)
		want   []string
	}{
		{"eligible", func(*repo.Technician) {}, nil},
		{"kyc pending", func(t *repo.Technician) { t.KYCStatus = "pending" }, []string{ReasonKYCNotApproved}},
		{"training", func(t *repo.Technician) { t.TrainingCompleted = false }, []string{ReasonTrainingIncomplete}},
		{"offline and no skill", func(t *repo.Technician) { t.IsOnline = false; t.ServiceIDs = []int64{9} },
			[]string{ReasonOffline, ReasonMissingSkill}},
		{"everything", func(t *repo.Technician) { *t = repo.Technician{} },
			[]string{ReasonKYCNotApproved, ReasonProfileIncomplete, ReasonTrainingIncomplete, ReasonWorkNotApproved, ReasonOffline, ReasonMissingSkill}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tech := ready(1, 3)
			tc.mutate(&tech)
			d := Check(tech, 3)
			assert.Equal(t, tc.want, d.Failed)
			assert.Equal(t, len(tc.want) == 0, d.Eligible)
		})
	}
}

func TestCheckResponderIgnoresSkills(t *testing.T) {
	tech := ready(1)
	assert.True(t, CheckResponder(tech).Eligible)

	tech.WorkStatus = "suspended"
	d := CheckResponder(tech)
	require.False(t, d.Eligible)
	assert.Equal(t, []string{ReasonWorkNotApproved}, d.Failed)
}

type stubSource struct {
	techs []repo.Technician
	err   error
}

func (s stubSource) ListApprovedOnline(context.Context) ([]repo.Technician, error) {
	return s.techs, s.err
}

func TestEligibleFor(t *testing.T) {
	f := NewFilter(stubSource{techs: []repo.Technician{ready(1, 3), ready(2, 4), ready(3, 4, 3)}})
	ids, err := f.EligibleFor(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	ids, err = f.EligibleFor(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestEligibleForSourceError(t *testing.T) {
	f := NewFilter(stubSource{err: errors.New("db down")})
	_, err := f.EligibleFor(context.Background(), 3)
	assert.Error(t, err)
}
