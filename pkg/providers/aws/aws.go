// Package aws implements engine.Adapter on EC2, S3 and SQS.
//
// Compute handles carry the instance id, storage handles the bucket name and
// queue handles the queue URL. Resources the API no longer knows about report
// engine.StateTerminated.
package aws

import (
	"context"
	"fmt"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// EC2API is the subset of the EC2 client the adapter calls.
type EC2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// S3API is the subset of the S3 client the adapter calls.
type S3API interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// SQSAPI is the subset of the SQS client the adapter calls.
type SQSAPI interface {
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteQueue(ctx context.Context, in *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

// Options configures the adapter.
type Options struct {
	Region string

	// Static credentials. Empty keys fall back to the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Endpoint overrides every service endpoint, e.g. http://localhost:4566.
	Endpoint string

	Logger *telemetry.Logger
}

// Adapter talks to AWS.
type Adapter struct {
	ec2    EC2API
	s3     S3API
	sqs    SQSAPI
	region string
	logger *telemetry.Logger

	mu sync.Mutex
	// launched holds instances created here and not yet terminated. EC2 is
	// eventually consistent, so NotFound for these means not visible yet.
	launched map[string]bool
}

var _ engine.Adapter = (*Adapter)(nil)

// New loads the AWS configuration and builds the service clients.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var endpoint *string
	if opts.Endpoint != "" {
		endpoint = awssdk.String(opts.Endpoint)
	}

	ec2Client := ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.BaseEndpoint = endpoint })
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = endpoint != nil
	})
	sqsClient := sqs.NewFromConfig(cfg, func(o *sqs.Options) { o.BaseEndpoint = endpoint })

	return NewWithClients(opts.Region, ec2Client, s3Client, sqsClient, opts.Logger), nil
}

// NewWithClients builds an adapter on pre-built clients.
func NewWithClients(region string, ec2Client EC2API, s3Client S3API, sqsClient SQSAPI, logger *telemetry.Logger) *Adapter {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Adapter{
		ec2:      ec2Client,
		s3:       s3Client,
		sqs:      sqsClient,
		region:   region,
		logger:   logger.NewComponentLogger("aws").WithField("region", region),
		launched: make(map[string]bool),
	}
}

// Describe reports the state of a resource.
func (a *Adapter) Describe(ctx context.Context, kind engine.Kind, id string) (engine.State, error) {
	switch kind {
	case engine.KindCompute:
		return a.describeInstance(ctx, id)
	case engine.KindStorage:
		return a.describeBucket(ctx, id)
	case engine.KindQueue:
		return a.describeQueue(ctx, id)
	default:
		return "", fmt.Errorf("unsupported resource kind %q", kind)
	}
}

// Terminate releases a resource.
func (a *Adapter) Terminate(ctx context.Context, kind engine.Kind, id string) error {
	switch kind {
	case engine.KindCompute:
		return a.terminateInstance(ctx, id)
	case engine.KindStorage:
		return a.deleteBucket(ctx, id)
	case engine.KindQueue:
		return a.deleteQueue(ctx, id)
	default:
		return fmt.Errorf("unsupported resource kind %q", kind)
	}
}
