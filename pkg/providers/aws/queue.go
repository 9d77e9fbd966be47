package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

const (
	// titleAttribute carries Message.Title as a message attribute.
	titleAttribute = "name"
	untitled       = "Untitled"

	// SQS caps long polling at 20 seconds.
	maxWaitSeconds = 20
)

// ProvisionQueue creates a queue. The handle ID is the queue URL.
func (a *Adapter) ProvisionQueue(ctx context.Context, spec engine.QueueSpec) (engine.Handle, error) {
	out, err := a.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  awssdk.String(spec.Name),
		Attributes: spec.Attributes,
	})
	if err != nil {
		return engine.Handle{}, fmt.Errorf("create queue %s: %w", spec.Name, err)
	}

	url := awssdk.ToString(out.QueueUrl)
	if url == "" {
		return engine.Handle{}, fmt.Errorf("create queue %s returned no url", spec.Name)
	}

	a.logger.WithResource(string(engine.KindQueue), url).Info("queue created")
	return engine.Handle{
		Kind:       engine.KindQueue,
		ID:         url,
		Attributes: map[string]string{"name": spec.Name},
	}, nil
}

func (a *Adapter) describeQueue(ctx context.Context, url string) (engine.State, error) {
	_, err := a.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       awssdk.String(url),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	switch {
	case err == nil:
		return engine.StateReady, nil
	case hasCode(err, queueNotFoundCodes...):
		return engine.StateTerminated, nil
	default:
		return "", fmt.Errorf("get queue attributes %s: %w", url, err)
	}
}

// SendMessage sends msg with its title as the "name" attribute.
func (a *Adapter) SendMessage(ctx context.Context, queue engine.Handle, msg engine.Message) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    awssdk.String(queue.ID),
		MessageBody: awssdk.String(msg.Body),
	}
	if msg.Title != "" {
		in.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
			titleAttribute: {DataType: awssdk.String("String"), StringValue: awssdk.String(msg.Title)},
		}
	}

	out, err := a.sqs.SendMessage(ctx, in)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", queue.ID, err)
	}

	a.logger.WithResource(string(engine.KindQueue), queue.ID).
		WithField("message_id", awssdk.ToString(out.MessageId)).
		Info("message sent")
	return nil
}

// ReceiveMessage long-polls for one message. The message is left on the
// queue and reappears after its visibility timeout.
func (a *Adapter) ReceiveMessage(ctx context.Context, queue engine.Handle, wait time.Duration) (*engine.Message, error) {
	waitSeconds := int32(wait / time.Second)
	if waitSeconds > maxWaitSeconds {
		waitSeconds = maxWaitSeconds
	}

	out, err := a.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              awssdk.String(queue.ID),
		MaxNumberOfMessages:   1,
		MessageAttributeNames: []string{"All"},
		WaitTimeSeconds:       waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive message from %s: %w", queue.ID, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	title := untitled
	if attr, ok := m.MessageAttributes[titleAttribute]; ok && awssdk.ToString(attr.StringValue) != "" {
		title = awssdk.ToString(attr.StringValue)
	}
	return &engine.Message{Body: awssdk.ToString(m.Body), Title: title}, nil
}

// CountMessages returns ApproximateNumberOfMessages.
func (a *Adapter) CountMessages(ctx context.Context, queue engine.Handle) (int, error) {
	out, err := a.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       awssdk.String(queue.ID),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("get queue attributes %s: %w", queue.ID, err)
	}

	raw, ok := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	if !ok {
		return 0, fmt.Errorf("queue %s did not report ApproximateNumberOfMessages", queue.ID)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse message count %q: %w", raw, err)
	}
	return n, nil
}

func (a *Adapter) deleteQueue(ctx context.Context, url string) error {
	_, err := a.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: awssdk.String(url)})
	if err != nil && !hasCode(err, queueNotFoundCodes...) {
		return fmt.Errorf("delete queue %s: %w", url, err)
	}

	a.logger.WithResource(string(engine.KindQueue), url).Info("queue deleted")
	return nil
}
