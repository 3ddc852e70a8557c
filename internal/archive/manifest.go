package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one file included in a built archive, in archive order.
type Entry struct {
	Path   string `json:"path"`
	Type   string `json:"type,omitempty"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest records what a build produced: the ordered (requirement, file)
// pairs, the pre-compression aggregate size, and a fingerprint over the
// content. Immutable after Build returns; written to the audit log.
type Manifest struct {
	ExamID        string    `json:"examId"`
	RollNumber    string    `json:"rollNumber"`
	SchemaVersion string    `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	Entries       []Entry   `json:"entries"`
	TotalBytes    int64     `json:"totalBytes"`
	ContentHash   string    `json:"contentHash"`
}

type manifestBuilder struct {
	m Manifest
}

func newManifestBuilder(examID, roll, version string, ts time.Time) *manifestBuilder {
	return &manifestBuilder{m: Manifest{
		ExamID:        examID,
		RollNumber:    roll,
		SchemaVersion: version,
		CreatedAt:     ts,
		Entries:       []Entry{},
	}}
}

func (mb *manifestBuilder) add(path, docType string, data []byte) {
	sum := sha256.Sum256(data)
	mb.m.Entries = append(mb.m.Entries, Entry{
		Path:   path,
		Type:   docType,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	})
	mb.m.TotalBytes += int64(len(data))
}

// build seals the manifest, deriving the content hash from the ordered
// per-entry hashes so identical input sets always fingerprint identically.
func (mb *manifestBuilder) build() *Manifest {
	hasher := sha256.New()
	for _, e := range mb.m.Entries {
		hasher.Write([]byte(e.SHA256))
	}
	mb.m.ContentHash = hex.EncodeToString(hasher.Sum(nil))
	return &mb.m
}
