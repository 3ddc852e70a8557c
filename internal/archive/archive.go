// Package archive packs finalized documents into a single zip in exam
// requirement order, with an embedded metadata.json and a reproducible
// manifest for auditing. Ordering and manifest content are deterministic
// for a given input set; byte-identical zips across runs are not promised.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/schema"
)

// MetadataFile is the well-known manifest entry inside every archive. Its
// key set (examType, rollNumber, documentsIncluded, createdAt,
// schemaVersion) is a compatibility contract with downstream tooling and
// must not change.
const MetadataFile = "metadata.json"

// Sentinel build failures, always wrapped with the offending filename.
var (
	ErrUnmatchedFile = errors.New("unmatched file")
	ErrEmptyFile     = errors.New("empty file")
)

// Policy decides what happens to files no requirement matched.
type Policy string

const (
	// PolicyStrict fails the build on any unmatched file.
	PolicyStrict Policy = "strict"
	// PolicyLenient appends unmatched files after all matched entries.
	PolicyLenient Policy = "lenient"
)

// ParsePolicy validates a policy string from config or an API request.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	case "":
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown archive policy %q", s)
}

// Item pairs a (possibly transformed) file with the requirement it was
// matched to. Requirement is nil for unmatched files.
type Item struct {
	File        *model.UploadedFile
	Requirement *schema.DocumentRequirement
}

// Options configures one build.
type Options struct {
	RollNumber string
	Policy     Policy
	// Format names the container. Only "zip" (or empty) is supported;
	// anything else is rejected explicitly rather than silently
	// substituted with zip.
	Format string
	// Now overrides the build timestamp for reproducible output.
	Now time.Time
}

// Build assembles the archive. Files appear in the order their requirement
// is declared in the schema, regardless of upload order; under the lenient
// policy unmatched files follow, in input order. Any unreadable or
// zero-byte file fails the whole build atomically, naming the file.
func Build(items []Item, s *schema.ExamSchema, opts Options) ([]byte, *Manifest, error) {
	if opts.Format != "" && !strings.EqualFold(opts.Format, "zip") {
		return nil, nil, fmt.Errorf("unsupported archive format %q: only zip is produced", opts.Format)
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyStrict
	}
	ts := opts.Now
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ordered, err := orderItems(items, s, policy)
	if err != nil {
		return nil, nil, err
	}
	for _, item := range ordered {
		if item.File == nil || len(item.File.Data) == 0 {
			name := "<nil>"
			if item.File != nil {
				name = item.File.Name
			}
			return nil, nil, fmt.Errorf("cannot archive %s: %w", name, ErrEmptyFile)
		}
	}

	mb := newManifestBuilder(s.ID, opts.RollNumber, s.Version, ts)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	writeEntry := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: ts,
		})
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write archive entry %s: %w", name, err)
		}
		return nil
	}

	meta := map[string]interface{}{
		"examType":          s.ID,
		"rollNumber":        opts.RollNumber,
		"documentsIncluded": len(ordered),
		"createdAt":         ts.Format(time.RFC3339),
		"schemaVersion":     s.Version,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeEntry(MetadataFile, metaBytes); err != nil {
		return nil, nil, err
	}

	used := map[string]int{MetadataFile: 1}
	for _, item := range ordered {
		name := uniqueName(item.File.Name, used)
		docType := ""
		if item.Requirement != nil {
			docType = item.Requirement.Type
		}
		if err := writeEntry(name, item.File.Data); err != nil {
			return nil, nil, err
		}
		mb.add(name, docType, item.File.Data)
	}

	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), mb.build(), nil
}

// orderItems rebuilds the item list in requirement-declaration order. Under
// the strict policy a single unmatched file aborts the build.
func orderItems(items []Item, s *schema.ExamSchema, policy Policy) ([]Item, error) {
	ordered := make([]Item, 0, len(items))
	taken := make([]bool, len(items))
	for ri := range s.Requirements {
		req := &s.Requirements[ri]
		for i, item := range items {
			if taken[i] || item.Requirement == nil {
				continue
			}
			if strings.EqualFold(item.Requirement.Type, req.Type) {
				ordered = append(ordered, item)
				taken[i] = true
			}
		}
	}
	for i, item := range items {
		if taken[i] {
			continue
		}
		if item.Requirement == nil {
			if policy == PolicyStrict {
				name := "<nil>"
				if item.File != nil {
					name = item.File.Name
				}
				return nil, fmt.Errorf("%w: %s", ErrUnmatchedFile, name)
			}
			ordered = append(ordered, item)
			continue
		}
		// Matched against a requirement the schema does not declare; treat
		// like unmatched so a stale requirement pointer cannot slip through.
		if policy == PolicyStrict {
			return nil, fmt.Errorf("%w: %s (requirement %q not in schema %s)", ErrUnmatchedFile, item.File.Name, item.Requirement.Type, s.ID)
		}
		ordered = append(ordered, item)
	}
	return ordered, nil
}

// uniqueName disambiguates duplicate entry names so the zip stays readable;
// transformed files are already collision-free, this guards raw pass-through
// names under the lenient policy.
func uniqueName(name string, used map[string]int) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%d_%s", n+1, name)
}
