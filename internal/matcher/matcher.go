// Package matcher binds an uploaded file to the document requirement it
// should satisfy, by substring matching the filename against requirement
// types and aliases.
package matcher

import (
	"strings"

	"github.com/rahulmehra/exampack/internal/schema"
)

// Match returns the first requirement (in declaration order) whose
// normalized type or alias occurs as a substring of the normalized filename.
// Matching is case-insensitive and whitespace-insensitive but not fuzzy;
// when several requirements' aliases could match, the first declared one
// wins. The second return value is false when nothing matches; callers
// must treat that as an unmatched-file violation, never a silent skip.
func Match(filename string, s *schema.ExamSchema) (*schema.DocumentRequirement, bool) {
	name := normalize(filename)
	if name == "" {
		return nil, false
	}
	for i := range s.Requirements {
		req := &s.Requirements[i]
		if tn := normalize(req.Type); tn != "" && strings.Contains(name, tn) {
			return req, true
		}
		for _, alias := range req.Aliases {
			if a := normalize(alias); a != "" && strings.Contains(name, a) {
				return req, true
			}
		}
	}
	return nil, false
}

// normalize lowercases and strips all whitespace so "ID Proof" matches
// "id_proof.pdf" as well as "IDProof.pdf".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '\n', '\r', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
