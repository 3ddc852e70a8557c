// Package transform brings a non-compliant document into compliance with
// its requirement through a staged pipeline: resize, reformat, recompress,
// rename. Every stage is individually resilient; when all corrective
// attempts are exhausted the original file is returned unchanged with a
// fallback marker, never an error.
package transform

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/uuid"

	"github.com/rahulmehra/exampack/internal/model"
	"github.com/rahulmehra/exampack/internal/schema"
	"github.com/rahulmehra/exampack/internal/validate"
)

// Result is the outcome of one transformation run. Steps lists what the
// pipeline actually did, in order. Fallback is set when the requirement
// could not be satisfied and File is the untouched original.
type Result struct {
	File     *model.UploadedFile
	Steps    []string
	Fallback bool
}

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	QualityStart int // initial JPEG quality, default 90
	QualityStep  int // quality decrement per attempt, default 10
	QualityFloor int // minimum acceptable JPEG quality, default 25
	MinEdge      int // stop downscale descent below this edge, default 40
	MaxEdge      int // decode sanity cap on the long edge, default 8192

	// Token supplies the uniqueness token for normalized filenames.
	// Overridable so tests get deterministic names.
	Token func() string
}

// Pipeline applies the staged transformation. Safe for concurrent use;
// it holds no per-file state.
type Pipeline struct {
	opts Options
}

// NewPipeline builds a Pipeline, filling unset options with defaults.
func NewPipeline(opts Options) *Pipeline {
	if opts.QualityStart <= 0 || opts.QualityStart > 100 {
		opts.QualityStart = 90
	}
	if opts.QualityStep <= 0 {
		opts.QualityStep = 10
	}
	if opts.QualityFloor <= 0 {
		opts.QualityFloor = 25
	}
	if opts.MinEdge <= 0 {
		opts.MinEdge = 40
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = 8192
	}
	if opts.Token == nil {
		opts.Token = func() string { return uuid.NewString()[:8] }
	}
	return &Pipeline{opts: opts}
}

// Transform makes file satisfy req if it can. A file that already
// satisfies the requirement is returned untouched, which makes Transform a
// fixed point on its own output. Cancellation of ctx (including a per-file
// timeout) degrades to pass-through fallback.
func (p *Pipeline) Transform(ctx context.Context, file *model.UploadedFile, req *schema.DocumentRequirement) Result {
	if validate.Validate(file, req).Valid {
		return Result{File: file}
	}

	res := Result{File: file}
	target, ok := encodableTarget(req)
	if !ok {
		// Requirement only accepts formats we cannot synthesize (PDF);
		// nothing to do beyond handing the original back.
		res.Fallback = true
		res.Steps = append(res.Steps, fmt.Sprintf("pass-through: cannot produce %s", req.PreferredFormat()))
		return res
	}

	img, err := decode(file.Data)
	if err != nil {
		res.Fallback = true
		res.Steps = append(res.Steps, "pass-through: "+err.Error())
		return res
	}

	var steps []string

	// Stage 1: resize. Aspect-fit into the required box, and regardless of
	// the requirement cap the long edge so a pathological source cannot blow
	// up memory in the encode loop.
	img, steps = p.resize(img, req, steps)
	if err := ctx.Err(); err != nil {
		res.Fallback = true
		res.Steps = append(steps, "pass-through: "+err.Error())
		return res
	}

	// Stages 2+3: reformat into the first encodable accepted format, then
	// walk quality down until the size bound holds.
	sourceFormat, _ := schema.FromMIME(file.MIME)
	if sourceFormat != "" && sourceFormat != target {
		steps = append(steps, fmt.Sprintf("reformatted %s -> %s", sourceFormat, target))
	}
	data, encSteps, ok := p.recompress(ctx, img, req, target)
	steps = append(steps, encSteps...)
	if !ok {
		res.Fallback = true
		res.Steps = steps
		return res
	}

	// Stage 4: normalize the filename so archive contents are predictable
	// and collision-free no matter what the user called the upload.
	name := normalizedName(req.Type, p.opts.Token(), target)
	if name != file.Name {
		steps = append(steps, fmt.Sprintf("renamed %s -> %s", file.Name, name))
	}

	res.File = &model.UploadedFile{Name: name, MIME: target.MIME(), Data: data}
	res.Steps = steps
	return res
}

func (p *Pipeline) resize(img image.Image, req *schema.DocumentRequirement, steps []string) (image.Image, []string) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	boxW, boxH := p.opts.MaxEdge, p.opts.MaxEdge
	if req.Dimensions != nil {
		boxW, boxH = req.Dimensions.Width, req.Dimensions.Height
	}
	nw, nh := fitWithin(w, h, boxW, boxH)
	if nw == w && nh == h {
		return img, steps
	}
	steps = append(steps, fmt.Sprintf("resized %dx%d -> %dx%d", w, h, nw, nh))
	return scale(img, nw, nh), steps
}

// recompress searches for an encoding of img that satisfies the size bound:
// first descending JPEG quality, then alternate accepted encodings, and as a
// last resort a bounded downscale descent at floor quality. Individual
// encode failures move on to the next attempt instead of aborting.
func (p *Pipeline) recompress(ctx context.Context, img image.Image, req *schema.DocumentRequirement, target schema.Format) ([]byte, []string, bool) {
	var steps []string
	maxBytes := req.MaxSizeKB * 1024

	attempt := func(img image.Image, format schema.Format, quality int) ([]byte, bool) {
		data, err := encode(img, format, quality)
		if err != nil {
			steps = append(steps, fmt.Sprintf("encode %s failed: %v", format, err))
			return nil, false
		}
		return data, len(data) <= maxBytes
	}

	if target == schema.FormatJPEG {
		for q := p.opts.QualityStart; q >= p.opts.QualityFloor; q -= p.opts.QualityStep {
			if ctx.Err() != nil {
				steps = append(steps, "aborted: "+ctx.Err().Error())
				return nil, steps, false
			}
			if data, fits := attempt(img, target, q); fits {
				steps = append(steps, fmt.Sprintf("recompressed to %d KB at quality %d", sizeKB(data), q))
				return data, steps, true
			}
		}
	} else {
		// PNG has no quality dial; one shot at best compression.
		if data, fits := attempt(img, target, 0); fits {
			steps = append(steps, fmt.Sprintf("recompressed to %d KB (%s)", sizeKB(data), target))
			return data, steps, true
		}
		// Try the other accepted lossy encoding before giving up.
		if req.AcceptsFormat(schema.FormatJPEG) {
			if data, fits := attempt(img, schema.FormatJPEG, p.opts.QualityFloor); fits {
				steps = append(steps, fmt.Sprintf("reformatted %s -> %s to meet size", target, schema.FormatJPEG))
				steps = append(steps, fmt.Sprintf("recompressed to %d KB at quality %d", sizeKB(data), p.opts.QualityFloor))
				return data, steps, true
			}
		}
	}

	// Last resort: shrink the canvas itself at floor quality.
	format := target
	if format != schema.FormatJPEG && req.AcceptsFormat(schema.FormatJPEG) {
		format = schema.FormatJPEG
	}
	current := img
	for i := 0; i < 6; i++ {
		if ctx.Err() != nil {
			steps = append(steps, "aborted: "+ctx.Err().Error())
			return nil, steps, false
		}
		b := current.Bounds()
		nw, nh := b.Dx()*3/4, b.Dy()*3/4
		if nw < p.opts.MinEdge || nh < p.opts.MinEdge {
			break
		}
		current = scale(current, nw, nh)
		if data, fits := attempt(current, format, p.opts.QualityFloor); fits {
			steps = append(steps, fmt.Sprintf("downscaled to %dx%d to meet size", nw, nh))
			steps = append(steps, fmt.Sprintf("recompressed to %d KB at quality %d", sizeKB(data), p.opts.QualityFloor))
			return data, steps, true
		}
	}
	steps = append(steps, fmt.Sprintf("size bound %d KB unreachable, passing original through", req.MaxSizeKB))
	return nil, steps, false
}

// encodableTarget picks the format the pipeline converts to: the first
// accepted format it can actually produce. PDFs are passed through, never
// synthesized from pixels.
func encodableTarget(req *schema.DocumentRequirement) (schema.Format, bool) {
	for _, f := range req.Formats {
		if f == schema.FormatJPEG || f == schema.FormatPNG {
			return f, true
		}
	}
	return "", false
}

// normalizedName derives the deterministic output filename from the
// requirement type plus a uniqueness token: "ID Proof" -> ID_Proof_ab12cd34.pdf.
func normalizedName(docType, token string, format schema.Format) string {
	base := strings.Join(strings.Fields(docType), "_")
	return base + "_" + token + format.Ext()
}

func sizeKB(data []byte) int {
	return int((int64(len(data)) + 1023) / 1024)
}
