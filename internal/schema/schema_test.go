package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinSchemasAreValid(t *testing.T) {
	schemas := List()
	if len(schemas) != 3 {
		t.Fatalf("expected 3 built-in schemas, got %d", len(schemas))
	}
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			t.Errorf("schema %s: %v", s.ID, err)
		}
	}
}

func TestLookup(t *testing.T) {
	s, err := Lookup("ssc")
	if err != nil {
		t.Fatalf("lookup ssc: %v", err)
	}
	if _, ok := s.Requirement("Photo"); !ok {
		t.Fatalf("ssc schema missing Photo requirement")
	}
	if _, err := Lookup("gre"); err == nil {
		t.Fatalf("expected error for unknown exam")
	}
}

func TestFromMIME(t *testing.T) {
	cases := []struct {
		mime   string
		want   Format
		wantOK bool
	}{
		{"image/jpeg", FormatJPEG, true},
		{"image/jpg", FormatJPEG, true},
		{" IMAGE/PNG ", FormatPNG, true},
		{"application/pdf", FormatPDF, true},
		{"text/plain", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := FromMIME(tc.mime)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("FromMIME(%q) = %q, %v; want %q, %v", tc.mime, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestDimensionsContains(t *testing.T) {
	box := Dimensions{Width: 200, Height: 230}
	if !box.Contains(200, 230) {
		t.Errorf("exact fit should be contained")
	}
	if !box.Contains(150, 100) {
		t.Errorf("smaller size should be contained")
	}
	if box.Contains(201, 230) {
		t.Errorf("wider than box should not be contained")
	}
	if box.Contains(0, 100) {
		t.Errorf("zero width should not be contained")
	}
}

func TestSchemaValidateRejectsBadShapes(t *testing.T) {
	base := func() *ExamSchema {
		return &ExamSchema{
			ID:      "test",
			Version: "1",
			Requirements: []DocumentRequirement{
				{Type: "Photo", Formats: []Format{FormatJPEG}, MaxSizeKB: 50},
			},
		}
	}

	s := base()
	s.Requirements = append(s.Requirements, DocumentRequirement{Type: "photo", Formats: []Format{FormatPNG}, MaxSizeKB: 10})
	if err := s.Validate(); err == nil {
		t.Errorf("expected duplicate type error")
	}

	s = base()
	s.Requirements[0].MaxSizeKB = 0
	if err := s.Validate(); err == nil {
		t.Errorf("expected non-positive size error")
	}

	s = base()
	s.Requirements[0].Formats = nil
	if err := s.Validate(); err == nil {
		t.Errorf("expected empty formats error")
	}

	s = base()
	s.Requirements[0].Formats = []Format{"GIF"}
	if err := s.Validate(); err == nil {
		t.Errorf("expected unknown format error")
	}

	s = base()
	s.Requirements[0].Dimensions = &Dimensions{Width: 0, Height: 10}
	if err := s.Validate(); err == nil {
		t.Errorf("expected non-positive dimensions error")
	}

	s = base()
	s.Requirements[0].Type = "   "
	if err := s.Validate(); err == nil {
		t.Errorf("expected empty type error for whitespace-only type")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state-psc.json")
	doc := `{
		"id": "state-psc",
		"name": "State Public Service Commission",
		"version": "2024.1",
		"requirements": [
			{"type": "Photo", "formats": ["JPEG"], "maxSizeKB": 60,
			 "dimensions": {"width": 300, "height": 360}, "mandatory": true},
			{"type": "Signature", "formats": ["JPEG", "PNG"], "maxSizeKB": 30}
		]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.ID != "state-psc" || len(s.Requirements) != 2 {
		t.Fatalf("unexpected schema loaded: id=%s requirements=%d", s.ID, len(s.Requirements))
	}
	req, ok := s.Requirement("Photo")
	if !ok {
		t.Fatalf("loaded schema missing Photo requirement")
	}
	if req.MaxSizeKB != 60 || req.Dimensions == nil || req.Dimensions.Width != 300 {
		t.Errorf("Photo requirement decoded wrong: %+v", req)
	}
}

func TestLoadFileRejectsInvalidSchema(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	doc := `{"id": "bad", "requirements": [{"type": "Photo", "formats": ["JPEG"], "maxSizeKB": 0}]}`
	if err := os.WriteFile(bad, []byte(doc), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Errorf("expected validation error for non-positive maxSizeKB")
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}
	if _, err := LoadFile(garbage); err == nil {
		t.Errorf("expected decode error for malformed JSON")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("expected read error for missing file")
	}
}
