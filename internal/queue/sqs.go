package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ammobase/harvester/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Queue = (*SQSQueue)(nil)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue implements Queue over one standard SQS queue per stage. Standard
// queues allow the per-message DelaySeconds that retry backoff and tier delays
// need (FIFO queues reject it and serialize delivery within a message group,
// which would defeat per-stage concurrency). Duplicate deliveries are absorbed
// by the handlers, which are idempotent under the deterministic job id; the id
// travels as a message attribute so redeliveries stay traceable.
type SQSQueue struct {
	client SQSAPI
	urls   map[types.Stage]string
}

// NewSQS creates an SQSQueue from the default AWS config chain.
func NewSQS(ctx context.Context, region string, urls map[types.Stage]string) (*SQSQueue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SQSQueue{client: sqs.NewFromConfig(awsCfg), urls: urls}, nil
}

// NewSQSFromClient creates an SQSQueue from an existing client (useful for testing).
func NewSQSFromClient(client SQSAPI, urls map[types.Stage]string) *SQSQueue {
	return &SQSQueue{client: client, urls: urls}
}

func (q *SQSQueue) url(stage types.Stage) (string, error) {
	u, ok := q.urls[stage]
	if !ok || u == "" {
		return "", fmt.Errorf("no queue URL configured for stage %s", stage)
	}
	return u, nil
}

// Enqueue sends one message to the stage queue.
func (q *SQSQueue) Enqueue(ctx context.Context, stage types.Stage, body []byte, opts Options) error {
	u, err := q.url(stage)
	if err != nil {
		return err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(u),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"attempt": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(opts.Attempt)),
			},
		},
	}
	if opts.DedupID != "" {
		in.MessageAttributes["jobId"] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(opts.DedupID),
		}
	}
	if opts.Delay > 0 {
		// SQS caps DelaySeconds at 15 minutes.
		delay := int32(opts.Delay / time.Second)
		if delay > 900 {
			delay = 900
		}
		in.DelaySeconds = delay
	}
	if _, err := q.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send %s: %w", stage, err)
	}
	return nil
}

// Receive long-polls the stage queue for up to max messages.
func (q *SQSQueue) Receive(ctx context.Context, stage types.Stage, max int) ([]Message, error) {
	u, err := q.url(stage)
	if err != nil {
		return nil, err
	}
	if max <= 0 || max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(u),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"attempt"},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive %s: %w", stage, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attempt := 1
		if av, ok := m.MessageAttributes["attempt"]; ok && av.StringValue != nil {
			if n, err := strconv.Atoi(*av.StringValue); err == nil && n > 0 {
				attempt = n
			}
		}
		msgs = append(msgs, Message{
			Handle:  aws.ToString(m.ReceiptHandle),
			Body:    []byte(aws.ToString(m.Body)),
			Attempt: attempt,
		})
	}
	return msgs, nil
}

// Delete acknowledges a processed message.
func (q *SQSQueue) Delete(ctx context.Context, stage types.Stage, msg Message) error {
	u, err := q.url(stage)
	if err != nil {
		return err
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(u),
		ReceiptHandle: aws.String(msg.Handle),
	}); err != nil {
		return fmt.Errorf("sqs delete %s: %w", stage, err)
	}
	return nil
}
