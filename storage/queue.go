package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"kanban-sync/domain"
)

// EventQueue exports committed change events to an Azure Storage queue for
// consumers outside the process.
type EventQueue struct {
	queue *azqueue.QueueClient
}

const queueAlreadyExists = "QueueAlreadyExists"

// EnsureQueue creates the named queue if it does not exist yet.
func EnsureQueue(ctx context.Context, connStr, queueName string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err) {
		return err
	}
	return nil
}

func alreadyExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == queueAlreadyExists
}

// NewEventQueue creates an EventQueue from the given connection string.
func NewEventQueue(connStr, queueName string) (*EventQueue, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

// EnqueueEvents sends the given events to the queue in order.
func (q *EventQueue) EnqueueEvents(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := q.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
