package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/rahulmehra/exampack/internal/schema"
)

// decode parses image bytes into pixels. JPEG and PNG decoders are
// registered via the image package imports below; anything else (or corrupt
// data) returns an error which callers treat as "cannot be fixed".
func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// encode serializes pixels into the target format. quality only applies to
// JPEG; PNG always uses best compression since it is lossless.
func encode(img image.Image, format schema.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case schema.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case schema.FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("cannot encode format %s", format)
	}
	return buf.Bytes(), nil
}

// scale resamples img to exactly w x h using Catmull-Rom interpolation,
// which keeps downscaled photos and signatures sharp enough for exam
// portals without ringing artifacts.
func scale(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// fitWithin computes the largest size that fits inside the boxW x boxH box
// while preserving the source aspect ratio. It never scales up: a source
// already inside the box is returned unchanged.
func fitWithin(w, h, boxW, boxH int) (int, int) {
	if w <= boxW && h <= boxH {
		return w, h
	}
	// Pick the tighter constraint of the two axes.
	scaleW := float64(boxW) / float64(w)
	scaleH := float64(boxH) / float64(h)
	s := scaleW
	if scaleH < s {
		s = scaleH
	}
	nw := int(float64(w) * s)
	nh := int(float64(h) * s)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
