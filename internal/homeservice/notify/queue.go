package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"fixitBack/internal/metrics"
)

// Task types processed by the notification worker.
const (
	TaskNotifyTechnicians = "notify:technicians"
	TaskNotifyCustomer    = "notify:customer"
	TaskNotifyJobTaken    = "notify:job_taken"

	// QueueName is the asynq queue notifications are enqueued on.
	QueueName = "notifications"
)

type technicianTask struct {
	TechnicianIDs []int64    `json:"technician_ids"`
	Job           JobSummary `json:"job"`
}

type customerTask struct {
	CustomerID int64 `json:"customer_id"`
	Event      Event `json:"event"`
}

type jobTakenTask struct {
	TechnicianIDs []int64 `json:"technician_ids"`
	BookingID     int64   `json:"booking_id"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue implements Notifier by enqueuing asynq tasks. Delivery happens in the
// worker, so callers only see enqueue failures. Delivery failures are logged
// and never retried.
type Queue struct {
	client enqueuer
}

func NewQueue(client enqueuer) *Queue {
	return &Queue{client: client}
}

func (q *Queue) enqueue(ctx context.Context, taskType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, body, asynq.Queue(QueueName), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues("queue").Inc()
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

func (q *Queue) NotifyTechnicians(ctx context.Context, ids []int64, job JobSummary) error {
	if len(ids) == 0 {
		return nil
	}
	return q.enqueue(ctx, TaskNotifyTechnicians, technicianTask{TechnicianIDs: ids, Job: job})
}

func (q *Queue) NotifyCustomer(ctx context.Context, customerID int64, ev Event) error {
	return q.enqueue(ctx, TaskNotifyCustomer, customerTask{CustomerID: customerID, Event: ev})
}

func (q *Queue) NotifyJobTaken(ctx context.Context, ids []int64, bookingID int64) error {
	if len(ids) == 0 {
		return nil
	}
	return q.enqueue(ctx, TaskNotifyJobTaken, jobTakenTask{TechnicianIDs: ids, BookingID: bookingID})
}

// RegisterHandlers routes notification tasks to target.
func RegisterHandlers(mux *asynq.ServeMux, target Notifier, logger Logger) {
	w := &worker{target: target, logger: logger}
	mux.HandleFunc(TaskNotifyTechnicians, w.technicians)
	mux.HandleFunc(TaskNotifyCustomer, w.customer)
	mux.HandleFunc(TaskNotifyJobTaken, w.jobTaken)
}

type worker struct {
	target Notifier
	logger Logger
}

func (w *worker) technicians(ctx context.Context, t *asynq.Task) error {
	var p technicianTask
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return w.deliver(t.Type(), w.target.NotifyTechnicians(ctx, p.TechnicianIDs, p.Job))
}

func (w *worker) customer(ctx context.Context, t *asynq.Task) error {
	var p customerTask
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return w.deliver(t.Type(), w.target.NotifyCustomer(ctx, p.CustomerID, p.Event))
}

func (w *worker) jobTaken(ctx context.Context, t *asynq.Task) error {
	var p jobTakenTask
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return w.deliver(t.Type(), w.target.NotifyJobTaken(ctx, p.TechnicianIDs, p.BookingID))
}

// deliver records a failed delivery and acks the task anyway. A task fans out
// to several recipients, so a retry would repeat every delivery that worked.
func (w *worker) deliver(taskType string, err error) error {
	if err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(taskType).Inc()
		w.logger.Errorf("deliver %s: %v", taskType, err)
	}
	return nil
}
