package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestQueueRoundTrip(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueue(enq)
	ctx := context.Background()

	require.NoError(t, q.NotifyTechnicians(ctx, []int64{4, 5}, JobSummary{BookingID: 1, BaseAmount: "500"}))
	require.NoError(t, q.NotifyCustomer(ctx, 100, Event{Type: EventBookingAccepted, BookingID: 1, TechnicianID: 4}))
	require.NoError(t, q.NotifyJobTaken(ctx, []int64{5}, 1))
	require.NoError(t, q.NotifyJobTaken(ctx, nil, 1))
	require.Len(t, enq.tasks, 3)

	rec := newRecorder()
	mux := asynq.NewServeMux()
	RegisterHandlers(mux, rec, zap.NewNop().Sugar())
	for _, task := range enq.tasks {
		require.NoError(t, mux.ProcessTask(ctx, task))
	}

	assert.Equal(t, "500", rec.offers[4][0].BaseAmount)
	assert.Len(t, rec.offers[5], 1)
	require.Len(t, rec.customer, 1)
	assert.Equal(t, int64(4), rec.customer[0].TechnicianID)
	assert.Equal(t, []int64{1}, rec.taken[5])
}

func TestQueueEnqueueFailure(t *testing.T) {
	q := NewQueue(&fakeEnqueuer{err: errors.New("redis down")})
	assert.Error(t, q.NotifyCustomer(context.Background(), 1, Event{}))
}

func TestWorkerSkipsRetryOnBadPayload(t *testing.T) {
	mux := asynq.NewServeMux()
	RegisterHandlers(mux, newRecorder(), zap.NewNop().Sugar())
	err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskNotifyCustomer, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerDeliversOnceOnPartialFailure(t *testing.T) {
	enq := &fakeEnqueuer{}
	ctx := context.Background()
	require.NoError(t, NewQueue(enq).NotifyTechnicians(ctx, []int64{1, 2, 3}, JobSummary{BookingID: 9}))
	require.Len(t, enq.tasks, 1)

	counter := newRecorder()
	flaky := newRecorder()
	flaky.err = errors.New("fcm send: one bad token")
	mux := asynq.NewServeMux()
	RegisterHandlers(mux, Multi{counter, flaky}, zap.NewNop().Sugar())

	require.NoError(t, mux.ProcessTask(ctx, enq.tasks[0]))
	for _, id := range []int64{1, 2, 3} {
		assert.Len(t, counter.offers[id], 1, "technician %d", id)
	}

	err := mux.ProcessTask(ctx, asynq.NewTask(TaskNotifyJobTaken, []byte(`{"technician_ids":[1],"booking_id":2}`)))
	assert.NoError(t, err)
	assert.Equal(t, []int64{2}, counter.taken[1])
}
