package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []Message
	err   error
	panic bool
	block bool
	ctxs  []context.Context
}

func (p *recordingProcessor) ProcessJob(ctx context.Context, msg Message) error {
	p.mu.Lock()
	p.seen = append(p.seen, msg)
	p.ctxs = append(p.ctxs, ctx)
	p.mu.Unlock()
	if p.panic {
		panic("boom")
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func closeRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRunnerProcessesAfterDelay(t *testing.T) {
	p := &recordingProcessor{}
	r := NewRunner(p, RunnerOptions{Delays: Delays{Detect: 10 * time.Millisecond}})

	require.NoError(t, r.Send(context.Background(), Message{Kind: KindDetect, DocumentID: "doc-1"}))
	closeRunner(t, r)

	require.Equal(t, 1, p.count())
	assert.Equal(t, "doc-1", p.seen[0].DocumentID)
	assert.Equal(t, 0, r.Pending())
}

func TestRunnerCancelSkipsJob(t *testing.T) {
	p := &recordingProcessor{}
	r := NewRunner(p, RunnerOptions{Delays: Delays{Complete: time.Hour}})

	require.NoError(t, r.Send(context.Background(), Message{Kind: KindComplete, DocumentID: "doc-1"}))
	assert.True(t, r.Cancel("doc-1"))
	assert.False(t, r.Cancel("doc-1"))
	closeRunner(t, r)

	assert.Equal(t, 0, p.count())
}

func TestRunnerBoundsJobWithTimeout(t *testing.T) {
	p := &recordingProcessor{block: true}
	r := NewRunner(p, RunnerOptions{Timeout: 20 * time.Millisecond})

	require.NoError(t, r.Send(context.Background(), Message{Kind: KindDetect, DocumentID: "doc-1"}))
	closeRunner(t, r)

	require.Equal(t, 1, p.count())
	assert.ErrorIs(t, p.ctxs[0].Err(), context.DeadlineExceeded)
}

func TestRunnerRecoversPanics(t *testing.T) {
	p := &recordingProcessor{panic: true}
	r := NewRunner(p, RunnerOptions{})

	require.NoError(t, r.Send(context.Background(), Message{Kind: KindDetect, DocumentID: "doc-1"}))
	closeRunner(t, r)

	assert.Equal(t, 1, p.count())
}

func TestRunnerRejectsInvalidAndClosed(t *testing.T) {
	r := NewRunner(&recordingProcessor{}, RunnerOptions{})

	require.ErrorIs(t, r.Send(context.Background(), Message{Kind: KindDetect}), ErrMissingDocumentID)
	closeRunner(t, r)
	require.ErrorIs(t, r.Send(context.Background(), Message{Kind: KindDetect, DocumentID: "doc-1"}), ErrRunnerClosed)
}

type fakeSQSSender struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSClientSendsDelayedMessage(t *testing.T) {
	sender := &fakeSQSSender{}
	client := &SQSClient{client: sender, queueURL: "https://sqs.test/q", delays: Delays{Detect: 3 * time.Second}}

	require.NoError(t, client.Send(context.Background(), Message{Kind: KindDetect, DocumentID: "doc-1", OwnerID: "u"}))
	require.NotNil(t, sender.input)
	assert.Equal(t, "https://sqs.test/q", aws.ToString(sender.input.QueueUrl))
	assert.Equal(t, int32(3), sender.input.DelaySeconds)

	decoded, err := DecodeMessage([]byte(aws.ToString(sender.input.MessageBody)))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", decoded.DocumentID)
}

func TestSQSClientWrapsSendError(t *testing.T) {
	client := &SQSClient{client: &fakeSQSSender{err: errors.New("throttled")}, queueURL: "q"}
	err := client.Send(context.Background(), Message{Kind: KindComplete, DocumentID: "doc-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqs send message")
}
