package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/shardgate/internal/logger"
)

// maxParts is the S3 limit on parts per multipart upload.
const maxParts = 10000

// putMultipart streams size bytes from r into key as a multipart upload.
//
// Parts are uploaded sequentially in partSize chunks. Any failure aborts the
// upload so no partial object or orphaned parts remain.
func (s *S3ContentStore) putMultipart(ctx context.Context, key, p string, r io.Reader, size int64) error {
	partSize := s.partSize
	if (size+partSize-1)/partSize > maxParts {
		partSize = (size + maxParts - 1) / maxParts
	}

	start := time.Now()
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	parts, err := s.uploadParts(ctx, key, uploadID, r, size, partSize)
	if err != nil {
		s.abortMultipart(key, uploadID)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("write %s: %w", p, err)
		}
		return err
	}

	start = time.Now()
	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	if err != nil {
		s.abortMultipart(key, uploadID)
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	s.metrics.RecordBytes("write", size)
	return nil
}

func (s *S3ContentStore) uploadParts(ctx context.Context, key, uploadID string, r io.Reader, size, partSize int64) ([]types.CompletedPart, error) {
	parts := make([]types.CompletedPart, 0, (size+partSize-1)/partSize)
	buf := make([]byte, partSize)

	var sent int64
	for partNumber := int32(1); sent < size; partNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk := min(partSize, size-sent)
		n, err := io.ReadFull(r, buf[:chunk])
		if err != nil {
			return nil, fmt.Errorf("got %d of %d bytes: %w", sent+int64(n), size, io.ErrUnexpectedEOF)
		}

		start := time.Now()
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:chunk]),
			ContentLength: aws.Int64(chunk),
		})
		s.metrics.ObserveOperation("UploadPart", time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		sent += chunk
	}
	return parts, nil
}

// abortMultipart cancels an in-progress upload. It uses a fresh context so
// cleanup still runs when the caller's context was cancelled.
func (s *S3ContentStore) abortMultipart(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			logger.Warn("Failed to abort multipart upload %s for %s: %v", uploadID, key, err)
		}
	}
}
