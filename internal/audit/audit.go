// Package audit keeps an append-only record of validation decisions and
// archive builds. Recording is diagnostic, not transactional: it never
// blocks or fails the caller's primary flow. When the configured sink is
// unavailable the entry is surfaced through the local logger instead.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Validation modes recorded on entries.
const (
	ModeStrict   = "strict"
	ModeFallback = "fallback"
)

// Outcomes recorded on entries.
const (
	OutcomeAccepted      = "accepted"
	OutcomeTransformed   = "transformed"
	OutcomeFallback      = "fallback"
	OutcomeRejected      = "rejected"
	OutcomeUnmatched     = "unmatched"
	OutcomeArchiveBuilt  = "archive-built"
	OutcomeArchiveFailed = "archive-failed"
)

// Entry is one append-only audit record. Entries are never edited or
// deleted by the application. Mode is the validation mode
// (strict/fallback); archive-build entries leave it empty and record the
// build policy in Policy instead, keeping the two vocabularies apart.
type Entry struct {
	FileName  string    `json:"fileName"`
	ExamID    string    `json:"examId"`
	Mode      string    `json:"mode,omitempty"`
	Policy    string    `json:"policy,omitempty"`
	Outcome   string    `json:"outcome"`
	Errors    []string  `json:"errors,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder is a durable audit sink, e.g. the Postgres repository.
type Recorder interface {
	RecordAudit(ctx context.Context, e Entry) error
}

// Log fans entries out to the sink with a local logger fallback.
type Log struct {
	sink   Recorder
	logger zerolog.Logger
}

// New builds a Log. sink may be nil, in which case every entry goes to the
// local logger only.
func New(sink Recorder, logger zerolog.Logger) *Log {
	return &Log{sink: sink, logger: logger}
}

// Record appends an entry. Sink failures are swallowed after being logged
// locally; the caller's flow is never interrupted by auditing.
func (l *Log) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if l.sink != nil {
		err := l.sink.RecordAudit(ctx, e)
		if err == nil {
			return
		}
		l.logger.Warn().Err(err).Str("file", e.FileName).Msg("audit sink unavailable, falling back to local log")
	}
	l.logger.Info().
		Str("file", e.FileName).
		Str("exam", e.ExamID).
		Str("mode", e.Mode).
		Str("policy", e.Policy).
		Str("outcome", e.Outcome).
		Strs("errors", e.Errors).
		Time("at", e.Timestamp).
		Msg("audit")
}
