package queue

import (
	"context"
	"errors"
	"sync"
)

type memoryDelivery struct {
	job         Job
	redelivered bool
}

// Memory is an in-process queue with the same at-least-once contract as the
// broker-backed one: a failed delivery is requeued exactly once, flagged
// redelivered. It exists so the controller and worker can be tested without
// a broker.
type Memory struct {
	mu     sync.Mutex
	jobs   []memoryDelivery
	failed bool // when set, Publish refuses to accept jobs
}

func NewMemory() *Memory {
	return &Memory{}
}

// Fail makes subsequent publishes error, simulating a broker outage.
func (m *Memory) Fail(v bool) {
	m.mu.Lock()
	m.failed = v
	m.mu.Unlock()
}

func (m *Memory) Publish(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return errors.New("queue unavailable")
	}
	m.jobs = append(m.jobs, memoryDelivery{job: job})
	return nil
}

// Len reports the number of queued deliveries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Drain synchronously delivers every queued job to handle, requeueing a
// failed job once with the redelivered flag set. It returns when the queue
// is empty.
func (m *Memory) Drain(ctx context.Context, handle Handler) error {
	for {
		m.mu.Lock()
		if len(m.jobs) == 0 {
			m.mu.Unlock()
			return nil
		}
		d := m.jobs[0]
		m.jobs = m.jobs[1:]
		m.mu.Unlock()

		if err := handle(ctx, d.job, d.redelivered); err != nil {
			if d.redelivered {
				// second failure: the broker analogue is handler-side
				// poison handling, so the delivery is dropped here
				continue
			}
			m.mu.Lock()
			m.jobs = append(m.jobs, memoryDelivery{job: d.job, redelivered: true})
			m.mu.Unlock()
		}
	}
}

// Consume satisfies the Consumer interface by draining whatever is queued.
func (m *Memory) Consume(ctx context.Context, handle Handler) error {
	return m.Drain(ctx, handle)
}
