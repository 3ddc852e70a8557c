// Package api exposes the HTTP surface: exam schema discovery, bundle
// creation from multipart uploads, status polling and signed archive
// downloads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/rahulmehra/exampack/internal/archive"
	"github.com/rahulmehra/exampack/internal/config"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/queue"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/schema"
	"github.com/rahulmehra/exampack/internal/signing"
)

// ObjectStore is the object storage surface the API needs: parking and
// unparking originals, streaming built archives, and presigning direct
// archive GETs.
type ObjectStore interface {
	UploadOriginal(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	RemoveOriginal(ctx context.Context, objectKey string) error
	DownloadArchive(ctx context.Context, objectKey string) ([]byte, error)
	PresignArchiveURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Server exposes HTTP endpoints for bundle creation and visibility.
type Server struct {
	cfg    *config.Config
	repo   repository.BundleStore
	store  ObjectStore
	queue  *asynq.Client
	signer *signing.Signer
	logger zerolog.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, repo repository.BundleStore, store ObjectStore, queueClient *asynq.Client, signer *signing.Signer, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		queue:  queueClient,
		signer: signer,
		logger: logger,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.HandleFunc("/exams", s.handleExams)
		mux.HandleFunc("/exams/", s.handleExamRoute)
		mux.HandleFunc("/bundles", s.handleBundles)
		mux.HandleFunc("/bundles/", s.handleBundleRoute)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(s.loggingMiddleware(mux)),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info().Str("addr", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, schema.List())
}

func (s *Server) handleExamRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/exams/")
	examSchema, err := schema.Lookup(id)
	if err != nil {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, examSchema)
}

func (s *Server) handleBundles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBundle(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBundleRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/bundles/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleBundle(w, r, id)
		return
	}
	switch parts[1] {
	case "signed-url":
		s.handleSignedURL(w, r, id)
	case "download":
		s.handleDownload(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bundle, err := s.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "bundle not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

// handleCreateBundle accepts a multipart form with exam, rollNumber and
// optional policy fields plus any number of "file" parts. Originals are
// parked in object storage and the build runs asynchronously.
func (s *Server) handleCreateBundle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Bound the whole request body; individual parts are bounded again
	// while streaming.
	r.Body = http.MaxBytesReader(w, r.Body, 8*s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}

	bundleID := uuid.NewString()
	var (
		examID, rollNumber, policy string
		refs                       []queue.FileRef
	)
	// Parts stream in client order, so originals may already be parked in
	// object storage by the time a later field fails validation. Any
	// rejection below must unpark them or the uploads bucket accretes
	// orphans.
	discardUploads := func() {
		for _, ref := range refs {
			if err := s.store.RemoveOriginal(ctx, ref.ObjectKey); err != nil {
				s.logger.Warn().Err(err).Str("object", ref.ObjectKey).Msg("discard orphaned upload")
			}
		}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			discardUploads()
			http.Error(w, "failed to read upload", http.StatusBadRequest)
			return
		}
		switch part.FormName() {
		case "exam":
			examID, err = readFormValue(part)
			if err == nil {
				// The exam id is the cheapest thing to reject on; doing it
				// as soon as the field arrives spares streaming the files.
				if _, lookupErr := schema.Lookup(examID); lookupErr != nil {
					discardUploads()
					http.Error(w, lookupErr.Error(), http.StatusBadRequest)
					return
				}
			}
		case "rollNumber":
			rollNumber, err = readFormValue(part)
		case "policy":
			policy, err = readFormValue(part)
		case "file":
			var ref *queue.FileRef
			ref, err = s.persistPart(ctx, bundleID, len(refs), part)
			if err == nil {
				refs = append(refs, *ref)
			}
		default:
			part.Close()
			continue
		}
		if err != nil {
			discardUploads()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if examID == "" {
		discardUploads()
		http.Error(w, "missing exam field", http.StatusBadRequest)
		return
	}
	if rollNumber == "" {
		discardUploads()
		http.Error(w, "missing rollNumber field", http.StatusBadRequest)
		return
	}
	if len(refs) == 0 {
		http.Error(w, "missing file parts", http.StatusBadRequest)
		return
	}
	if policy == "" {
		policy = s.cfg.ArchivePolicy
	}
	if _, err := archive.ParsePolicy(policy); err != nil {
		discardUploads()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bundle := &model.Bundle{
		ID:         bundleID,
		ExamID:     examID,
		RollNumber: rollNumber,
		Policy:     policy,
	}
	if err := s.repo.Create(ctx, bundle); err != nil {
		s.logger.Error().Err(err).Msg("create bundle row")
		discardUploads()
		http.Error(w, "failed to store metadata", http.StatusInternalServerError)
		return
	}
	payload := queue.BuildPayload{
		BundleID:   bundleID,
		ExamID:     examID,
		RollNumber: rollNumber,
		Policy:     policy,
		Files:      refs,
	}
	if err := queue.EnqueueBuild(ctx, s.queue, payload); err != nil {
		s.logger.Error().Err(err).Msg("enqueue build")
		discardUploads()
		http.Error(w, "failed to queue build", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     bundleID,
		"status": string(model.StatusQueued),
	})
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bundle, err := s.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "bundle not found", http.StatusNotFound)
		return
	}
	if bundle.Status != model.StatusCompleted || bundle.ArchiveKey == nil {
		http.Error(w, "archive not ready", http.StatusConflict)
		return
	}
	expiry := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	signature := s.signer.Sign(id, expiry)
	url := fmt.Sprintf("/bundles/%s/download?expires=%d&signature=%s", id, expiry, signature)
	resp := map[string]string{
		"url":     url,
		"expires": strconv.FormatInt(expiry, 10),
	}
	// Also hand out a direct presigned object URL so clients can pull the
	// archive straight from storage instead of proxying through the API.
	storageURL, err := s.store.PresignArchiveURL(r.Context(), *bundle.ArchiveKey, s.cfg.SignedURLTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("bundle", id).Msg("presign archive url")
	} else {
		resp["storageUrl"] = storageURL
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if expires == "" || signature == "" {
		http.Error(w, "missing parameters", http.StatusBadRequest)
		return
	}
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		http.Error(w, "invalid expires", http.StatusBadRequest)
		return
	}
	if time.Unix(expiryUnix, 0).Before(time.Now()) {
		http.Error(w, "url expired", http.StatusUnauthorized)
		return
	}
	if !s.signer.Validate(id, expires, signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	bundle, err := s.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "bundle not found", http.StatusNotFound)
		return
	}
	if bundle.Status != model.StatusCompleted || bundle.ArchiveKey == nil {
		http.Error(w, "archive not ready", http.StatusConflict)
		return
	}
	data, err := s.store.DownloadArchive(r.Context(), *bundle.ArchiveKey)
	if err != nil {
		s.logger.Error().Err(err).Str("bundle", id).Msg("fetch archive")
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("%s_%s.zip", bundle.ExamID, bundle.RollNumber)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// persistPart streams one uploaded file into object storage, enforcing the
// per-file size limit and sniffing the content type when the client did not
// declare one.
func (s *Server) persistPart(ctx context.Context, bundleID string, index int, part *multipart.Part) (*queue.FileRef, error) {
	defer part.Close()
	limited := io.LimitReader(part, s.cfg.MaxFileSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read file part: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	mime := part.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		sniff := data
		if len(sniff) > 512 {
			sniff = sniff[:512]
		}
		mime = http.DetectContentType(sniff)
	}
	filename := part.FileName()
	if filename == "" {
		filename = fmt.Sprintf("upload-%d", index)
	}
	objectKey := fmt.Sprintf("uploads/%s/%d_%s", bundleID, index, filename)
	if err := s.store.UploadOriginal(ctx, objectKey, bytes.NewReader(data), int64(len(data)), mime); err != nil {
		return nil, fmt.Errorf("store %s: %w", filename, err)
	}
	return &queue.FileRef{ObjectKey: objectKey, FileName: filename, MIME: mime}, nil
}

func readFormValue(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, 4096))
	if err != nil {
		return "", fmt.Errorf("read form field %s: %w", part.FormName(), err)
	}
	return strings.TrimSpace(string(data)), nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing to do but note it.
		zlog.Error().Err(err).Msg("encode response")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
