//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/shardgate/pkg/store/content"
	s3store "github.com/marmos91/shardgate/pkg/store/content/s3"
	storetesting "github.com/marmos91/shardgate/pkg/store/content/testing"
)

// setupTestS3 connects to Localstack (or another S3-compatible endpoint set
// in LOCALSTACK_ENDPOINT) and creates a bucket removed by t.Cleanup.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	})

	return client
}

// TestS3ContentStore_Integration runs the content store suite against
// Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
//	go test -tags=integration ./pkg/store/content/s3/...
func TestS3ContentStore_Integration(t *testing.T) {
	bucketName := fmt.Sprintf("shardgate-test-%d", time.Now().UnixNano())
	client := setupTestS3(t, bucketName)

	n := 0
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			n++
			store, err := s3store.NewS3ContentStore(context.Background(), s3store.S3ContentStoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("run-%d/", n),
				PartSize:  5 * 1024 * 1024,
			})
			if err != nil {
				t.Fatalf("Failed to create S3 store: %v", err)
			}
			return store
		},
	}
	suite.Run(t)
}
