package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// SQS batch API limit.
const maxBatchEntries = 10

// sqsClient is the subset of the SQS API the queue uses; narrowed for test
// doubles.
type sqsClient interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue implements Queue on AWS SQS. Visibility timeout and the
// dead-letter redrive policy (max receive count) are properties of the queue
// resource itself, so this type only reads them back from received messages.
type SQSQueue struct {
	client   sqsClient
	queueURL string
}

// NewSQSQueue wraps an SQS client and queue URL.
func NewSQSQueue(client *sqs.Client, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

// newSQSQueueWithClient is the test seam.
func newSQSQueueWithClient(client sqsClient, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Publish(ctx context.Context, descriptors []Descriptor) error {
	for start := 0; start < len(descriptors); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(descriptors))

		entries := make([]sqsTypes.SendMessageBatchRequestEntry, 0, end-start)
		for _, d := range descriptors[start:end] {
			body, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("failed to marshal descriptor for event %s: %w", d.EventID, err)
			}
			entries = append(entries, sqsTypes.SendMessageBatchRequestEntry{
				Id:          aws.String(uuid.NewString()),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("failed to publish batch: %w", err)
		}
		if len(out.Failed) > 0 {
			first := out.Failed[0]
			return fmt.Errorf("failed to publish %d of %d descriptors: %s (%s)",
				len(out.Failed), len(entries), aws.ToString(first.Message), aws.ToString(first.Code))
		}
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max > maxBatchEntries {
		max = maxBatchEntries
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{
			sqsTypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		var d Descriptor
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal descriptor: %w", err)
		}

		receiveCount := 1
		if rc, ok := m.Attributes[string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(rc); err == nil {
				receiveCount = n
			}
		}

		msgs = append(msgs, Message{
			Descriptor:    d,
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  receiveCount,
		})
	}
	return msgs, nil
}

func (q *SQSQueue) Ack(ctx context.Context, msg Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
