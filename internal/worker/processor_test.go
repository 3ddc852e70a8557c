package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/rahulmehra/exampack/internal/audit"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/pipeline"
	"github.com/rahulmehra/exampack/internal/queue"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/transform"
)

type fakeStore struct {
	mu        sync.Mutex
	originals map[string][]byte
	archives  map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{originals: map[string][]byte{}, archives: map[string][]byte{}}
}

func (f *fakeStore) DownloadOriginal(_ context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.originals[objectKey]
	if !ok {
		return nil, errors.New("object not found: " + objectKey)
	}
	return data, nil
}

func (f *fakeStore) UploadArchive(_ context.Context, objectKey string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives[objectKey] = append([]byte(nil), data...)
	return nil
}

type captureSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureSink) RecordAudit(_ context.Context, e audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureSink) byOutcome(outcome string) (audit.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Outcome == outcome {
			return e, true
		}
	}
	return audit.Entry{}, false
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func newTestProcessor(repo repository.BundleStore, store ObjectStore, sink *captureSink) *Processor {
	logger := zerolog.Nop()
	auditor := audit.New(sink, logger)
	runner := pipeline.New(transform.NewPipeline(transform.Options{}), auditor, 2, 5*time.Second, logger)
	return NewProcessor(repo, store, runner, auditor, logger)
}

func buildTask(t *testing.T, payload queue.BuildPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(queue.BuildBundleTask, data)
}

func TestHandleBuildCompletesBundle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStore()
	store := newFakeStore()
	sink := &captureSink{}

	if err := repo.Create(ctx, &model.Bundle{ID: "b1", ExamID: "ssc", RollNumber: "SSC123", Policy: "strict"}); err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	store.originals["uploads/b1/0_signature.jpg"] = jpegBytes(t, 140, 60)

	p := newTestProcessor(repo, store, sink)
	task := buildTask(t, queue.BuildPayload{
		BundleID:   "b1",
		ExamID:     "ssc",
		RollNumber: "SSC123",
		Policy:     "strict",
		Files: []queue.FileRef{
			{ObjectKey: "uploads/b1/0_signature.jpg", FileName: "signature.jpg", MIME: "image/jpeg"},
		},
	})
	if err := p.handleBuild(ctx, task); err != nil {
		t.Fatalf("handleBuild: %v", err)
	}

	bundle, err := repo.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if bundle.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed (error %v)", bundle.Status, bundle.Error)
	}
	wantKey := "bundles/b1/ssc_SSC123.zip"
	if bundle.ArchiveKey == nil || *bundle.ArchiveKey != wantKey {
		t.Errorf("archive key = %v, want %s", bundle.ArchiveKey, wantKey)
	}
	if len(store.archives[wantKey]) == 0 {
		t.Errorf("archive bytes never uploaded")
	}
	if len(bundle.Manifest) == 0 {
		t.Errorf("manifest not stored on the bundle")
	}

	// Build entries record the archive policy in its own field; the
	// validation mode column stays reserved for strict/fallback.
	entry, ok := sink.byOutcome(audit.OutcomeArchiveBuilt)
	if !ok {
		t.Fatalf("no archive-built audit entry")
	}
	if entry.Policy != "strict" {
		t.Errorf("entry.Policy = %q, want strict", entry.Policy)
	}
	if entry.Mode != "" {
		t.Errorf("entry.Mode = %q, want empty for build entries", entry.Mode)
	}
}

func TestHandleBuildFailureMarksBundle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStore()
	store := newFakeStore()
	sink := &captureSink{}

	if err := repo.Create(ctx, &model.Bundle{ID: "b2", ExamID: "ssc", RollNumber: "R2", Policy: "strict"}); err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	// The referenced original was never uploaded.
	p := newTestProcessor(repo, store, sink)
	task := buildTask(t, queue.BuildPayload{
		BundleID:   "b2",
		ExamID:     "ssc",
		RollNumber: "R2",
		Policy:     "strict",
		Files: []queue.FileRef{
			{ObjectKey: "uploads/b2/0_photo.jpg", FileName: "photo.jpg", MIME: "image/jpeg"},
		},
	})
	if err := p.handleBuild(ctx, task); err == nil {
		t.Fatalf("expected build failure")
	}

	bundle, err := repo.Get(ctx, "b2")
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if bundle.Status != model.StatusFailed || bundle.Error == nil {
		t.Fatalf("bundle = %+v, want failed with error", bundle)
	}
	entry, ok := sink.byOutcome(audit.OutcomeArchiveFailed)
	if !ok {
		t.Fatalf("no archive-failed audit entry")
	}
	if entry.Policy != "strict" || entry.Mode != "" {
		t.Errorf("failure entry policy/mode = %q/%q", entry.Policy, entry.Mode)
	}
	if len(entry.Errors) == 0 {
		t.Errorf("failure entry should carry the error")
	}
}
