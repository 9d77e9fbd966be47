package aws

import (
	"context"
	"fmt"
	"os"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

// us-east-1 rejects an explicit location constraint.
const defaultRegion = "us-east-1"

// ProvisionStorage creates a bucket.
func (a *Adapter) ProvisionStorage(ctx context.Context, spec engine.StorageSpec) (engine.Handle, error) {
	region := spec.Region
	if region == "" {
		region = a.region
	}

	in := &s3.CreateBucketInput{Bucket: awssdk.String(spec.Name)}
	if region != defaultRegion {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}

	if _, err := a.s3.CreateBucket(ctx, in); err != nil {
		return engine.Handle{}, fmt.Errorf("create bucket %s: %w", spec.Name, err)
	}

	a.logger.WithResource(string(engine.KindStorage), spec.Name).Info("bucket created")
	return engine.Handle{
		Kind:       engine.KindStorage,
		ID:         spec.Name,
		Attributes: map[string]string{"region": region},
	}, nil
}

func (a *Adapter) describeBucket(ctx context.Context, name string) (engine.State, error) {
	_, err := a.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(name)})
	switch {
	case err == nil:
		return engine.StateReady, nil
	case hasCode(err, bucketNotFoundCodes...):
		return engine.StateTerminated, nil
	default:
		return "", fmt.Errorf("head bucket %s: %w", name, err)
	}
}

// UploadObject puts a local file into the bucket.
func (a *Adapter) UploadObject(ctx context.Context, bucket engine.Handle, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: awssdk.String(bucket.ID),
		Key:    awssdk.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket.ID, key, err)
	}

	a.logger.WithResource(string(engine.KindStorage), bucket.ID).WithField("key", key).Info("object uploaded")
	return nil
}

// deleteBucket empties the bucket and deletes it.
func (a *Adapter) deleteBucket(ctx context.Context, name string) error {
	p := s3.NewListObjectsV2Paginator(a.s3, &s3.ListObjectsV2Input{Bucket: awssdk.String(name)})
	deleted := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if hasCode(err, bucketNotFoundCodes...) {
				return nil
			}
			return fmt.Errorf("list objects in %s: %w", name, err)
		}
		for _, obj := range page.Contents {
			_, err := a.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: awssdk.String(name), Key: obj.Key})
			if err != nil {
				return fmt.Errorf("delete object %s/%s: %w", name, awssdk.ToString(obj.Key), err)
			}
			deleted++
		}
	}

	if _, err := a.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: awssdk.String(name)}); err != nil {
		if hasCode(err, bucketNotFoundCodes...) {
			return nil
		}
		return fmt.Errorf("delete bucket %s: %w", name, err)
	}

	a.logger.WithResource(string(engine.KindStorage), name).
		WithField("objects", deleted).
		Info("bucket deleted")
	return nil
}
