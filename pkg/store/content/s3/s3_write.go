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
)

// Put uploads exactly size bytes from r to p.
//
// Payloads up to partSize are buffered and sent with one PutObject; larger
// ones go through a multipart upload so memory stays bounded by one part.
// Either way the object only becomes visible once the upload completes.
func (s *S3ContentStore) Put(ctx context.Context, p string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := s.objectKey(p)
	if err != nil {
		return err
	}

	if size > s.partSize {
		return s.putMultipart(ctx, key, p, r, size)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	n, err := io.CopyN(buf, r, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("write %s: got %d of %d bytes: %w", p, n, size, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("write %s: %w", p, err)
	}

	start := time.Now()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
	})
	s.metrics.ObserveOperation("PutObject", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	s.metrics.RecordBytes("write", size)
	return nil
}

// Remove deletes the object at p.
//
// S3 DeleteObject succeeds for missing keys, so a HeadObject runs first to
// report a missing file the way the filesystem store does.
func (s *S3ContentStore) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.Stat(ctx, p); err != nil {
		return err
	}

	key, err := s.objectKey(p)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
