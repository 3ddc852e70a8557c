package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/rahulmehra/exampack/internal/archive"
	"github.com/rahulmehra/exampack/internal/audit"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/pipeline"
	"github.com/rahulmehra/exampack/internal/queue"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/schema"
)

// ObjectStore is the slice of object storage a build needs: pulling the
// parked originals and parking the finished archive.
type ObjectStore interface {
	DownloadOriginal(ctx context.Context, objectKey string) ([]byte, error)
	UploadArchive(ctx context.Context, objectKey string, data []byte) error
}

// Processor is plugged into the asynq worker loop. It owns the full build:
// pull originals, run the validation/transform cycle, pack the archive,
// store it, and flip the bundle row.
type Processor struct {
	repo    repository.BundleStore
	store   ObjectStore
	runner  *pipeline.Processor
	auditor *audit.Log
	logger  zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo repository.BundleStore, store ObjectStore, runner *pipeline.Processor, auditor *audit.Log, logger zerolog.Logger) *Processor {
	return &Processor{repo: repo, store: store, runner: runner, auditor: auditor, logger: logger}
}

// Handler registers the build job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.BuildBundleTask, p.handleBuild)
	return mux
}

func (p *Processor) handleBuild(ctx context.Context, task *asynq.Task) error {
	var payload queue.BuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	failure := func(err error) error {
		p.logger.Error().Err(err).Str("bundle", payload.BundleID).Msg("bundle build failed")
		_ = p.repo.MarkFailed(ctx, payload.BundleID, err.Error())
		p.auditor.Record(ctx, audit.Entry{
			FileName: payload.BundleID + ".zip",
			ExamID:   payload.ExamID,
			Policy:   payload.Policy,
			Outcome:  audit.OutcomeArchiveFailed,
			Errors:   []string{err.Error()},
		})
		return err
	}

	if err := p.repo.MarkProcessing(ctx, payload.BundleID); err != nil {
		return failure(err)
	}
	examSchema, err := schema.Lookup(payload.ExamID)
	if err != nil {
		return failure(err)
	}
	policy, err := archive.ParsePolicy(payload.Policy)
	if err != nil {
		return failure(err)
	}

	files := make([]*model.UploadedFile, 0, len(payload.Files))
	for _, ref := range payload.Files {
		data, err := p.store.DownloadOriginal(ctx, ref.ObjectKey)
		if err != nil {
			return failure(fmt.Errorf("fetch %s: %w", ref.FileName, err))
		}
		files = append(files, &model.UploadedFile{Name: ref.FileName, MIME: ref.MIME, Data: data})
	}

	results := p.runner.Run(ctx, examSchema, files)
	archiveBytes, manifest, err := archive.Build(pipeline.Items(results), examSchema, archive.Options{
		RollNumber: payload.RollNumber,
		Policy:     policy,
	})
	if err != nil {
		return failure(err)
	}

	archiveKey := fmt.Sprintf("bundles/%s/%s_%s.zip", payload.BundleID, payload.ExamID, payload.RollNumber)
	if err := p.store.UploadArchive(ctx, archiveKey, archiveBytes); err != nil {
		return failure(err)
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return failure(fmt.Errorf("marshal manifest: %w", err))
	}
	if err := p.repo.MarkCompleted(ctx, payload.BundleID, archiveKey, manifestJSON); err != nil {
		return failure(err)
	}
	p.auditor.Record(ctx, audit.Entry{
		FileName: archiveKey,
		ExamID:   payload.ExamID,
		Policy:   payload.Policy,
		Outcome:  audit.OutcomeArchiveBuilt,
	})
	p.logger.Info().
		Str("bundle", payload.BundleID).
		Int("documents", len(manifest.Entries)).
		Int64("bytes", manifest.TotalBytes).
		Msg("bundle built")
	return nil
}
