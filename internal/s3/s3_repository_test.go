package s3

import (
	"context"
	"os"
	"strings"
	"testing"
)

// Round-trips an object through the real captcha bucket. Needs live AWS
// credentials so it only runs when the bucket is configured.
func TestS3_CaptchaRoundtrip(t *testing.T) {
	awsRegion := os.Getenv("AWS_REGION")
	awsBucket := os.Getenv("AWS_S3_CAPTCHA_BUCKET")
	if awsRegion == "" || awsBucket == "" {
		t.Skip("AWS_REGION / AWS_S3_CAPTCHA_BUCKET not set, skipping live S3 test")
	}

	s3Repository := NewS3Session(awsRegion, awsBucket)

	if s3Repository.Bucket() != awsBucket {
		t.Errorf("wrong bucket, want %q got %q", awsBucket, s3Repository.Bucket())
	}

	ctx := context.Background()
	objName := "captchas/_test/s3_test_obj.png"

	err := s3Repository.WriteObjectReader(ctx, strings.NewReader("pretend-png"), objName)
	if err != nil {
		t.Errorf("Failed to write object to S3: %v", err)
		return
	}

	t.Log("Successfully wrote object to S3")

	if err := s3Repository.DeleteObject(ctx, objName); err != nil {
		t.Errorf("Unable to delete file: %v", err)
		return
	}

	t.Log("Successfully deleted object from S3")
}
