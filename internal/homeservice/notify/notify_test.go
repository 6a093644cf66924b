package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recorder captures notifications in memory.
type recorder struct {
	mu       sync.Mutex
	offers   map[int64][]JobSummary
	customer []Event
	taken    map[int64][]int64
	err      error
}

func newRecorder() *recorder {
	return &recorder{offers: map[int64][]JobSummary{}, taken: map[int64][]int64{}}
}

func (r *recorder) NotifyTechnicians(_ context.Context, ids []int64, job JobSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.offers[id] = append(r.offers[id], job)
	}
	return r.err
}

func (r *recorder) NotifyCustomer(_ context.Context, _ int64, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customer = append(r.customer, ev)
	return r.err
}

func (r *recorder) NotifyJobTaken(_ context.Context, ids []int64, bookingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.taken[id] = append(r.taken[id], bookingID)
	}
	return r.err
}

func TestMultiDeliversToEveryChannel(t *testing.T) {
	ok := newRecorder()
	failing := newRecorder()
	failing.err = errors.New("fcm down")

	err := Multi{failing, ok}.NotifyTechnicians(context.Background(), []int64{1, 2}, JobSummary{BookingID: 9})
	assert.ErrorContains(t, err, "fcm down")
	assert.Len(t, ok.offers[1], 1)
	assert.Len(t, ok.offers[2], 1)

	assert.NoError(t, Multi{ok}.NotifyJobTaken(context.Background(), []int64{3}, 9))
	assert.Equal(t, []int64{9}, ok.taken[3])
	assert.NoError(t, Multi{}.NotifyCustomer(context.Background(), 1, Event{}))
}
