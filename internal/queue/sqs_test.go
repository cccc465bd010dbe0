package queue

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammobase/harvester/pkg/types"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	received []sqstypes.Message
	deleted  []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: f.received}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func sqsURLs() map[types.Stage]string {
	return map[types.Stage]string{
		types.StageWrite:   "https://sqs.test/write",
		types.StageDeliver: "https://sqs.test/deliver",
	}
}

// A delayed enqueue must go out as a plain message with DelaySeconds. FIFO
// parameters would make SQS reject the send, so the job id travels as an
// attribute instead.
func TestSQSQueue_DelayedEnqueueIsNotFIFO(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSFromClient(client, sqsURLs())

	opts := Options{
		DedupID: JobID("e1", types.StageDeliver, "alert-1"),
		Delay:   5 * time.Minute,
		Attempt: 2,
	}
	require.NoError(t, q.Enqueue(context.Background(), types.StageDeliver, []byte("{}"), opts))

	require.Len(t, client.sent, 1)
	in := client.sent[0]
	assert.Nil(t, in.MessageDeduplicationId)
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, int32(300), in.DelaySeconds)
	assert.Equal(t, "https://sqs.test/deliver", aws.ToString(in.QueueUrl))

	require.Contains(t, in.MessageAttributes, "jobId")
	assert.Equal(t, opts.DedupID, aws.ToString(in.MessageAttributes["jobId"].StringValue))
	require.Contains(t, in.MessageAttributes, "attempt")
	assert.Equal(t, "2", aws.ToString(in.MessageAttributes["attempt"].StringValue))
}

func TestSQSQueue_DelayCappedAt900Seconds(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSFromClient(client, sqsURLs())

	opts := Options{Delay: time.Hour}
	require.NoError(t, q.Enqueue(context.Background(), types.StageWrite, []byte("{}"), opts))

	require.Len(t, client.sent, 1)
	assert.Equal(t, int32(900), client.sent[0].DelaySeconds)
}

func TestSQSQueue_ReceiveParsesAttempt(t *testing.T) {
	client := &fakeSQS{received: []sqstypes.Message{
		{
			ReceiptHandle: aws.String("rh-1"),
			Body:          aws.String(`{"attempt":3,"payload":{}}`),
			MessageAttributes: map[string]sqstypes.MessageAttributeValue{
				"attempt": {DataType: aws.String("Number"), StringValue: aws.String("3")},
			},
		},
		{
			ReceiptHandle: aws.String("rh-2"),
			Body:          aws.String(`{"attempt":1,"payload":{}}`),
		},
	}}
	q := NewSQSFromClient(client, sqsURLs())

	msgs, err := q.Receive(context.Background(), types.StageWrite, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 3, msgs[0].Attempt)
	assert.Equal(t, 1, msgs[1].Attempt) // missing attribute defaults to first attempt

	require.NoError(t, q.Delete(context.Background(), types.StageWrite, msgs[0]))
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

func TestSQSQueue_UnconfiguredStage(t *testing.T) {
	q := NewSQSFromClient(&fakeSQS{}, sqsURLs())
	err := q.Enqueue(context.Background(), types.StageFetch, []byte("{}"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queue URL")
}
