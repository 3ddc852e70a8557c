package schema

import (
	"fmt"
	"sort"
)

// builtin holds the three exam profiles the service ships with. The slices
// below are never mutated after init; callers receive the shared values
// read-only.
var builtin = map[string]*ExamSchema{
	"ssc": {
		ID:      "ssc",
		Name:    "SSC Combined Graduate Level",
		Version: "2024.1",
		Requirements: []DocumentRequirement{
			{
				Type:             "Photo",
				Aliases:          []string{"photograph", "passport", "pic"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        50,
				Dimensions:       &Dimensions{Width: 200, Height: 230},
				NamingConvention: "Photo_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Signature",
				Aliases:          []string{"sign", "sig"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        20,
				Dimensions:       &Dimensions{Width: 140, Height: 60},
				NamingConvention: "Signature_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "ID Proof",
				Aliases:          []string{"id", "aadhaar", "identity", "pan"},
				Formats:          []Format{FormatPDF, FormatJPEG},
				MaxSizeKB:        300,
				NamingConvention: "ID_Proof_<token>.pdf",
				Mandatory:        false,
			},
		},
	},
	"upsc": {
		ID:      "upsc",
		Name:    "UPSC Civil Services",
		Version: "2024.1",
		Requirements: []DocumentRequirement{
			{
				Type:             "Photo",
				Aliases:          []string{"photograph", "passport"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        300,
				Dimensions:       &Dimensions{Width: 1000, Height: 1000},
				NamingConvention: "Photo_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Signature",
				Aliases:          []string{"sign", "sig"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        300,
				Dimensions:       &Dimensions{Width: 1000, Height: 500},
				NamingConvention: "Signature_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Photo ID",
				Aliases:          []string{"id", "identity", "aadhaar"},
				Formats:          []Format{FormatPDF},
				MaxSizeKB:        500,
				NamingConvention: "Photo_ID_<token>.pdf",
				Mandatory:        true,
			},
		},
	},
	"ibps": {
		ID:      "ibps",
		Name:    "IBPS PO/Clerk",
		Version: "2024.1",
		Requirements: []DocumentRequirement{
			{
				Type:             "Photo",
				Aliases:          []string{"photograph", "passport"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        50,
				Dimensions:       &Dimensions{Width: 200, Height: 230},
				NamingConvention: "Photo_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Signature",
				Aliases:          []string{"sign", "sig"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        20,
				Dimensions:       &Dimensions{Width: 140, Height: 60},
				NamingConvention: "Signature_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Thumb Impression",
				Aliases:          []string{"thumb", "lti"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        50,
				Dimensions:       &Dimensions{Width: 240, Height: 240},
				NamingConvention: "Thumb_Impression_<token>.jpg",
				Mandatory:        true,
			},
			{
				Type:             "Declaration",
				Aliases:          []string{"handwritten", "declaration letter"},
				Formats:          []Format{FormatJPEG},
				MaxSizeKB:        100,
				Dimensions:       &Dimensions{Width: 800, Height: 400},
				NamingConvention: "Declaration_<token>.jpg",
				Mandatory:        false,
			},
		},
	},
}

// Lookup returns a built-in exam schema by id.
func Lookup(id string) (*ExamSchema, error) {
	s, ok := builtin[id]
	if !ok {
		return nil, fmt.Errorf("unknown exam %q", id)
	}
	return s, nil
}

// List returns all built-in schemas sorted by id.
func List() []*ExamSchema {
	out := make([]*ExamSchema, 0, len(builtin))
	for _, s := range builtin {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func init() {
	for id, s := range builtin {
		if err := s.Validate(); err != nil {
			panic(fmt.Sprintf("builtin schema %s invalid: %v", id, err))
		}
	}
}
