// Package pipeline orchestrates one validation/transform cycle across a
// user's uploaded file set. Files are processed in parallel by a bounded
// worker pool; the stages within one file stay strictly sequential, and
// Run does not return until every file has finished (the barrier the
// archive builder depends on).
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rahulmehra/exampack/internal/archive"
	"github.com/rahulmehra/exampack/internal/audit"
	"github.com/rahulmehra/exampack/internal/matcher"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/schema"
	"github.com/rahulmehra/exampack/internal/transform"
	"github.com/rahulmehra/exampack/internal/validate"
)

// FileResult is the per-file outcome of a cycle.
type FileResult struct {
	Input       *model.UploadedFile
	Output      *model.UploadedFile
	Requirement *schema.DocumentRequirement // nil when no requirement matched
	Verdict     validate.Verdict            // verdict for Output
	Transform   *transform.Result           // nil when no transform was attempted
}

// Processor runs cycles. Safe for concurrent use; all per-cycle state is
// local to Run.
type Processor struct {
	transformer *transform.Pipeline
	auditor     *audit.Log
	workers     int
	// timeout bounds each file's transform so one hung decode cannot
	// stall the whole batch; hitting it degrades to pass-through fallback.
	timeout time.Duration
	logger  zerolog.Logger
}

// New builds a Processor.
func New(transformer *transform.Pipeline, auditor *audit.Log, workers int, timeout time.Duration, logger zerolog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Processor{
		transformer: transformer,
		auditor:     auditor,
		workers:     workers,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run matches, validates and (when needed) transforms every file against
// the exam schema. Results are returned in input order. Cancelling ctx
// abandons files not yet started and cuts short in-flight transforms; no
// cleanup beyond releasing buffers is needed.
func (p *Processor) Run(ctx context.Context, s *schema.ExamSchema, files []*model.UploadedFile) []FileResult {
	results := make([]FileResult, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = p.processFile(ctx, s, files[idx])
			}
		}()
	}
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Abandoned files still get a result so callers see the
			// whole set; they are simply untouched originals.
			results[i] = FileResult{Input: files[i], Output: files[i], Verdict: validate.Verdict{}}
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (p *Processor) processFile(ctx context.Context, s *schema.ExamSchema, file *model.UploadedFile) FileResult {
	req, ok := matcher.Match(file.Name, s)
	if !ok {
		verdict := validate.Unmatched(file.Name)
		p.auditor.Record(ctx, audit.Entry{
			FileName: file.Name,
			ExamID:   s.ID,
			Mode:     audit.ModeStrict,
			Outcome:  audit.OutcomeUnmatched,
			Errors:   verdict.Messages(),
		})
		return FileResult{Input: file, Output: file, Verdict: verdict}
	}

	verdict := validate.Validate(file, req)
	if verdict.Valid {
		p.auditor.Record(ctx, audit.Entry{
			FileName: file.Name,
			ExamID:   s.ID,
			Mode:     audit.ModeStrict,
			Outcome:  audit.OutcomeAccepted,
		})
		return FileResult{Input: file, Output: file, Requirement: req, Verdict: verdict}
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	tr := p.transformer.Transform(tctx, file, req)

	result := FileResult{Input: file, Output: tr.File, Requirement: req, Transform: &tr}
	if tr.Fallback {
		// Best effort exhausted: the original passes through and the
		// verdict stays non-compliant for the caller to act on.
		result.Verdict = verdict
		p.auditor.Record(ctx, audit.Entry{
			FileName: file.Name,
			ExamID:   s.ID,
			Mode:     audit.ModeFallback,
			Outcome:  audit.OutcomeFallback,
			Errors:   verdict.Messages(),
		})
		p.logger.Warn().Str("file", file.Name).Strs("steps", tr.Steps).Msg("transform fell back to original")
		return result
	}

	result.Verdict = validate.Validate(tr.File, req)
	p.auditor.Record(ctx, audit.Entry{
		FileName: file.Name,
		ExamID:   s.ID,
		Mode:     audit.ModeFallback,
		Outcome:  audit.OutcomeTransformed,
		Errors:   result.Verdict.Messages(),
	})
	p.logger.Debug().Str("file", file.Name).Strs("steps", tr.Steps).Msg("transform applied")
	return result
}

// Items converts cycle results into archive builder input, preserving
// result order.
func Items(results []FileResult) []archive.Item {
	items := make([]archive.Item, len(results))
	for i, r := range results {
		items[i] = archive.Item{File: r.Output, Requirement: r.Requirement}
	}
	return items
}
