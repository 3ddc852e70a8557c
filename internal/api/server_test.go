package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rahulmehra/exampack/internal/config"
	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/signing"
)

type fakeObjectStore struct {
	uploads  map[string][]byte
	archives map[string][]byte
	removed  []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: map[string][]byte{}, archives: map[string][]byte{}}
}

func (f *fakeObjectStore) UploadOriginal(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.uploads[objectKey] = data
	return nil
}

func (f *fakeObjectStore) RemoveOriginal(_ context.Context, objectKey string) error {
	delete(f.uploads, objectKey)
	f.removed = append(f.removed, objectKey)
	return nil
}

func (f *fakeObjectStore) DownloadArchive(_ context.Context, objectKey string) ([]byte, error) {
	data, ok := f.archives[objectKey]
	if !ok {
		return nil, errors.New("archive not found: " + objectKey)
	}
	return data, nil
}

func (f *fakeObjectStore) PresignArchiveURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "http://storage.local/exampack-archives/" + objectKey + "?X-Amz-Signature=test", nil
}

func newTestServer(store ObjectStore, repo repository.BundleStore) *Server {
	cfg := &config.Config{
		Address:       ":0",
		MaxFileSize:   10 << 20,
		SignedURLTTL:  5 * time.Minute,
		ArchivePolicy: "strict",
		SigningSecret: []byte("test-secret"),
	}
	return New(cfg, repo, store, nil, signing.NewSigner(cfg.SigningSecret), zerolog.Nop())
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("create file part %s: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file part %s: %v", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// A request rejected after its file parts were streamed must not leave
// orphaned originals behind in the uploads bucket.
func TestCreateBundleRejectionDiscardsUploads(t *testing.T) {
	store := newFakeObjectStore()
	s := newTestServer(store, repository.NewMemoryStore())

	body, contentType := multipartBody(t,
		map[string]string{"exam": "ssc"}, // rollNumber deliberately missing
		map[string][]byte{"photo.jpg": []byte("stub-bytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/bundles", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.handleCreateBundle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(store.uploads) != 0 {
		t.Errorf("uploads bucket still holds %d orphaned objects", len(store.uploads))
	}
	if len(store.removed) != 1 || !strings.HasPrefix(store.removed[0], "uploads/") {
		t.Errorf("removed = %v, want the single parked original", store.removed)
	}
}

func TestCreateBundleRejectsUnknownExamEarly(t *testing.T) {
	store := newFakeObjectStore()
	s := newTestServer(store, repository.NewMemoryStore())

	body, contentType := multipartBody(t,
		map[string]string{"exam": "gre", "rollNumber": "R1"},
		map[string][]byte{"photo.jpg": []byte("stub-bytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/bundles", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.handleCreateBundle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(store.uploads) != 0 {
		t.Errorf("unknown exam must not leave uploads behind, got %v", store.uploads)
	}
}

func TestSignedURLIncludesStorageURL(t *testing.T) {
	store := newFakeObjectStore()
	repo := repository.NewMemoryStore()
	s := newTestServer(store, repo)

	ctx := context.Background()
	if err := repo.Create(ctx, &model.Bundle{ID: "b1", ExamID: "ssc", RollNumber: "R1", Policy: "strict"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	archiveKey := "bundles/b1/ssc_R1.zip"
	if err := repo.MarkCompleted(ctx, "b1", archiveKey, []byte(`{}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/bundles/b1/signed-url", nil)
	rec := httptest.NewRecorder()
	s.handleBundleRoute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp["storageUrl"], archiveKey) {
		t.Errorf("storageUrl = %q, want a presigned URL for %s", resp["storageUrl"], archiveKey)
	}

	// The API-side URL must carry a signature the download handler accepts.
	u, err := url.Parse(resp["url"])
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if !s.signer.Validate("b1", q.Get("expires"), q.Get("signature")) {
		t.Errorf("signed url does not validate: %s", resp["url"])
	}
}

func TestSignedURLNotReadyConflicts(t *testing.T) {
	store := newFakeObjectStore()
	repo := repository.NewMemoryStore()
	s := newTestServer(store, repo)
	if err := repo.Create(context.Background(), &model.Bundle{ID: "b2", ExamID: "ssc"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/bundles/b2/signed-url", nil)
	rec := httptest.NewRecorder()
	s.handleBundleRoute(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while queued", rec.Code)
	}
}

func TestDownloadStreamsArchive(t *testing.T) {
	store := newFakeObjectStore()
	repo := repository.NewMemoryStore()
	s := newTestServer(store, repo)

	ctx := context.Background()
	archiveKey := "bundles/b3/ssc_R3.zip"
	if err := repo.Create(ctx, &model.Bundle{ID: "b3", ExamID: "ssc", RollNumber: "R3", Policy: "strict"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkCompleted(ctx, "b3", archiveKey, []byte(`{}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	store.archives[archiveKey] = []byte("zip-bytes")

	expiry := time.Now().Add(time.Minute).Unix()
	sig := s.signer.Sign("b3", expiry)
	expires := strconv.FormatInt(expiry, 10)
	target := "/bundles/b3/download?expires=" + expires + "&signature=" + sig
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.handleBundleRoute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "zip-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}

	// Tampered signature is refused.
	bad := httptest.NewRequest(http.MethodGet, "/bundles/b3/download?expires="+expires+"&signature=deadbeef", nil)
	rec = httptest.NewRecorder()
	s.handleBundleRoute(rec, bad)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered signature status = %d, want 401", rec.Code)
	}
}
