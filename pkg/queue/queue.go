package queue

import "context"

// QueueName is the single processing queue shared by server and workers.
const QueueName = "dataset_processing"

// Job is the message carried on the processing queue. Delivery is
// at-least-once; consumers must handle redelivery idempotently.
type Job struct {
	DatasetID string `json:"datasetId"`
	UserID    uint   `json:"userId"`
	StoreRef  string `json:"storeRef"`
}

// Handler processes one job. Returning nil acknowledges the delivery;
// returning an error requeues it. redelivered is true when the broker has
// already delivered this job before, which handlers use to cap retries.
type Handler func(ctx context.Context, job Job, redelivered bool) error

// Publisher enqueues processing jobs.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Consumer delivers jobs to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
}
