package engine

import (
	"context"
	"fmt"
	"time"
)

// StepEnv is what an operating step may touch.
type StepEnv struct {
	Adapter     Adapter
	Handle      Handle
	Spec        RunSpec
	ReceiveWait time.Duration
}

// StepFunc performs one operating action and returns a short detail string.
type StepFunc func(ctx context.Context, env StepEnv) (string, error)

// Step is a single adapter call made while the run is operating.
type Step struct {
	// Name identifies the step in results and metrics.
	Name string

	// Kind is the resource kind the step acts on.
	Kind Kind

	// Run performs the step.
	Run StepFunc
}

// DefaultSteps uploads one object, then sends, counts, receives, and recounts one message.
func DefaultSteps() []Step {
	return []Step{
		{Name: "upload_object", Kind: KindStorage, Run: UploadObjectStep},
		{Name: "send_message", Kind: KindQueue, Run: SendMessageStep},
		{Name: "count_messages", Kind: KindQueue, Run: CountMessagesStep},
		{Name: "receive_message", Kind: KindQueue, Run: ReceiveMessageStep},
		{Name: "count_messages", Kind: KindQueue, Run: CountMessagesStep},
	}
}

// UploadObjectStep stores the configured local file in the bucket.
func UploadObjectStep(ctx context.Context, env StepEnv) (string, error) {
	up := env.Spec.Upload
	if err := env.Adapter.UploadObject(ctx, env.Handle, up.LocalPath, up.Key); err != nil {
		return "", err
	}
	return fmt.Sprintf("uploaded %s to %s/%s", up.LocalPath, env.Handle.ID, up.Key), nil
}

// SendMessageStep enqueues the configured message.
func SendMessageStep(ctx context.Context, env StepEnv) (string, error) {
	if err := env.Adapter.SendMessage(ctx, env.Handle, env.Spec.Message); err != nil {
		return "", err
	}
	return fmt.Sprintf("sent %q", env.Spec.Message.Body), nil
}

// CountMessagesStep records the approximate visible message count.
func CountMessagesStep(ctx context.Context, env StepEnv) (string, error) {
	n, err := env.Adapter.CountMessages(ctx, env.Handle)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("count=%d", n), nil
}

// ReceiveMessageStep reads one message. An empty queue is not a failure.
func ReceiveMessageStep(ctx context.Context, env StepEnv) (string, error) {
	msg, err := env.Adapter.ReceiveMessage(ctx, env.Handle, env.ReceiveWait)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "queue empty", nil
	}
	title := msg.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("received title=%q body=%q", title, msg.Body), nil
}
