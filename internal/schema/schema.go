// Package schema defines the declarative document requirements for each
// supported exam. A schema is loaded (or selected from the built-in set)
// once per session and treated as immutable configuration afterwards.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Format identifies an accepted document encoding. The set is closed:
// exam boards only ever ask for JPEG, PNG or PDF.
type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
	FormatPDF  Format = "PDF"
)

// FromMIME maps a declared MIME type onto a Format.
func FromMIME(mime string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return FormatJPEG, true
	case "image/png":
		return FormatPNG, true
	case "application/pdf":
		return FormatPDF, true
	}
	return "", false
}

// MIME returns the canonical MIME type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Ext returns the filename extension used when normalizing output names.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatPDF:
		return ".pdf"
	}
	return ""
}

func (f Format) valid() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatPDF:
		return true
	}
	return false
}

// Dimensions is the pixel bounding box a document must fit within. The
// transformer scales down to fit this box preserving aspect ratio, so the
// validator also treats it as a fit-within bound rather than an exact match;
// otherwise a transformed file could never validate.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Contains reports whether an actual pixel size fits inside the box.
func (d Dimensions) Contains(w, h int) bool {
	return w > 0 && h > 0 && w <= d.Width && h <= d.Height
}

// DocumentRequirement describes the acceptance criteria for one document
// type within one exam. Type values are unique per exam.
type DocumentRequirement struct {
	Type             string      `json:"type"`
	Aliases          []string    `json:"aliases,omitempty"`
	Formats          []Format    `json:"formats"`
	MaxSizeKB        int         `json:"maxSizeKB"`
	Dimensions       *Dimensions `json:"dimensions,omitempty"`
	NamingConvention string      `json:"namingConvention,omitempty"`
	Mandatory        bool        `json:"mandatory"`
}

// AcceptsFormat reports whether the format is in the requirement's list.
func (r DocumentRequirement) AcceptsFormat(f Format) bool {
	for _, accepted := range r.Formats {
		if strings.EqualFold(string(accepted), string(f)) {
			return true
		}
	}
	return false
}

// PreferredFormat is the encoding the transformer converts to: the first
// entry of the requirement's format list.
func (r DocumentRequirement) PreferredFormat() Format {
	if len(r.Formats) == 0 {
		return FormatJPEG
	}
	return r.Formats[0]
}

// ExamSchema is a named, versioned requirement set for one exam.
type ExamSchema struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Requirements []DocumentRequirement `json:"requirements"`
}

// Requirement returns the requirement with the given type, if declared.
func (s *ExamSchema) Requirement(docType string) (*DocumentRequirement, bool) {
	for i := range s.Requirements {
		if strings.EqualFold(s.Requirements[i].Type, docType) {
			return &s.Requirements[i], true
		}
	}
	return nil, false
}

// Validate checks schema shape once at load time so the rest of the code
// never has to defend against malformed requirements.
func (s *ExamSchema) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("schema missing id")
	}
	if len(s.Requirements) == 0 {
		return fmt.Errorf("schema %s declares no requirements", s.ID)
	}
	seen := make(map[string]struct{}, len(s.Requirements))
	for _, req := range s.Requirements {
		key := strings.ToLower(strings.TrimSpace(req.Type))
		if key == "" {
			return fmt.Errorf("schema %s: requirement with empty type", s.ID)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("schema %s: duplicate requirement type %q", s.ID, req.Type)
		}
		seen[key] = struct{}{}
		if len(req.Formats) == 0 {
			return fmt.Errorf("schema %s: requirement %q accepts no formats", s.ID, req.Type)
		}
		for _, f := range req.Formats {
			if !f.valid() {
				return fmt.Errorf("schema %s: requirement %q has unknown format %q", s.ID, req.Type, f)
			}
		}
		if req.MaxSizeKB <= 0 {
			return fmt.Errorf("schema %s: requirement %q has non-positive maxSizeKB", s.ID, req.Type)
		}
		if req.Dimensions != nil && (req.Dimensions.Width <= 0 || req.Dimensions.Height <= 0) {
			return fmt.Errorf("schema %s: requirement %q has non-positive dimensions", s.ID, req.Type)
		}
	}
	return nil
}

// LoadFile reads an ExamSchema from a JSON file, for requirement sets that
// come from outside the built-in registry.
func LoadFile(path string) (*ExamSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var s ExamSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
