package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Repository allows the server to interface with S3. We store the captcha
// snapshots here so OCR misreads can be inspected later.
type S3Repository struct {
	s3_session *s3Session
}

// Writes an object to the S3 bucket from a reader
func (s *S3Repository) WriteObjectReader(ctx context.Context, reader io.Reader, objectName string) error {
	_, err := s.s3_session.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.s3_session.bucket),
		Key:    aws.String(objectName),
		Body:   reader,
	})
	if err != nil {
		return fmt.Errorf("couldn't upload file %v to %v:%v. Here's why: %v",
			objectName, s.s3_session.bucket, objectName, err)
	}

	return nil
}

// DeleteObject deletes an object from S3 located at the object path
func (s *S3Repository) DeleteObject(ctx context.Context, objectPath string) error {
	params := s3.DeleteObjectInput{
		Bucket: aws.String(s.s3_session.bucket),
		Key:    aws.String(objectPath),
	}
	_, err := s.s3_session.client.DeleteObject(ctx, &params)
	if err != nil {
		return err
	}

	return nil
}

func (s *S3Repository) Bucket() string {
	return s.s3_session.bucket
}
