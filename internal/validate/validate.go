// Package validate checks one uploaded file against one document
// requirement and reports every violation in a single pass. It is pure:
// no side effects, no logging; audit recording belongs to the caller.
package validate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rahulmehra/exampack/internal/model"
	pdfutil "github.com/rahulmehra/exampack/internal/pdf"
	"github.com/rahulmehra/exampack/internal/schema"
)

// ViolationKind classifies a failed check.
type ViolationKind string

const (
	KindFormat     ViolationKind = "format"
	KindSize       ViolationKind = "size"
	KindDimensions ViolationKind = "dimensions"
	KindUnmatched  ViolationKind = "unmatched"
)

// Violation is one failed check with a human-readable message.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// Verdict is the outcome of validating one file against one requirement.
// Violations preserve check order: format, size, dimensions.
type Verdict struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Messages flattens the violation list for audit records.
func (v Verdict) Messages() []string {
	if len(v.Violations) == 0 {
		return nil
	}
	out := make([]string, len(v.Violations))
	for i, viol := range v.Violations {
		out[i] = string(viol.Kind) + ": " + viol.Message
	}
	return out
}

// Unmatched builds the verdict for a file no requirement claims.
func Unmatched(filename string) Verdict {
	return Verdict{Violations: []Violation{{
		Kind:    KindUnmatched,
		Message: fmt.Sprintf("no requirement matches %q", filename),
	}}}
}

// Validate runs every applicable check and accumulates all failures, so a
// caller gets the complete picture in one round-trip instead of fixing
// violations one at a time. Checks never short-circuit.
func Validate(file *model.UploadedFile, req *schema.DocumentRequirement) Verdict {
	var violations []Violation

	format, known := schema.FromMIME(file.MIME)
	switch {
	case !known:
		violations = append(violations, Violation{
			Kind:    KindFormat,
			Message: fmt.Sprintf("unsupported type %q, accepted: %s", file.MIME, formatList(req.Formats)),
		})
	case !req.AcceptsFormat(format):
		violations = append(violations, Violation{
			Kind:    KindFormat,
			Message: fmt.Sprintf("format %s not accepted, expected %s", format, formatList(req.Formats)),
		})
	case format == schema.FormatPDF:
		// A declared PDF that cannot be opened is as good as the wrong
		// format; catching it here keeps corrupt files out of archives.
		if _, err := pdfutil.Probe(file.Data); err != nil {
			violations = append(violations, Violation{
				Kind:    KindFormat,
				Message: fmt.Sprintf("unreadable pdf: %v", err),
			})
		}
	}

	if kb := file.SizeKB(); kb > req.MaxSizeKB {
		violations = append(violations, Violation{
			Kind:    KindSize,
			Message: fmt.Sprintf("size %d KB exceeds limit of %d KB", kb, req.MaxSizeKB),
		})
	}

	if req.Dimensions != nil {
		w, h, err := pixelSize(file.Data)
		if err != nil {
			// Unreadable pixel data counts as a failed dimension check,
			// not a skipped one.
			violations = append(violations, Violation{
				Kind:    KindDimensions,
				Message: fmt.Sprintf("pixel dimensions unreadable: %v", err),
			})
		} else if !req.Dimensions.Contains(w, h) {
			violations = append(violations, Violation{
				Kind:    KindDimensions,
				Message: fmt.Sprintf("dimensions %dx%d exceed required %s", w, h, req.Dimensions),
			})
		}
	}

	return Verdict{Valid: len(violations) == 0, Violations: violations}
}

func pixelSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func formatList(formats []schema.Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, "/")
}
