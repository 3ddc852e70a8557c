package objstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rahulmehra/exampack/internal/config"
)

func TestPresignArchiveURL(t *testing.T) {
	// With the region pinned the presigned URL is computed locally; no
	// object storage needs to be running.
	cfg := &config.Config{
		S3Endpoint:    "localhost:9000",
		S3AccessKey:   "minioadmin",
		S3SecretKey:   "minioadmin",
		S3Region:      "us-east-1",
		UploadBucket:  "exampack-uploads",
		ArchiveBucket: "exampack-archives",
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, err := store.PresignArchiveURL(context.Background(), "bundles/b1/ssc_R1.zip", 5*time.Minute)
	if err != nil {
		t.Fatalf("PresignArchiveURL: %v", err)
	}
	if !strings.Contains(u, "exampack-archives") || !strings.Contains(u, "ssc_R1.zip") {
		t.Errorf("url missing bucket or object: %s", u)
	}
	if !strings.Contains(u, "X-Amz-Signature=") {
		t.Errorf("url is not presigned: %s", u)
	}
}
