package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"tryonapi/models"
)

// Bounds and JPEG qualities used across the pipeline. Size estimation does not
// need full resolution; synthesis gets the larger bound for visual fidelity.
const (
	UploadBound       = 1600
	SizeEstimateBound = 800
	SynthesisBound    = 1024

	InferenceQuality = 80
	ProxyQuality     = 90
)

const dataURLPrefix = "data:image/jpeg;base64,"

// EncodedImage is the canonical normalized form: opaque JPEG bytes, produced
// only by the normalization functions below (or re-wrapped from inference
// output). DataURL returns the display-ready string, Base64 the bare wire
// payload — the inference backend rejects prefixed payloads, so the split
// matters.
type EncodedImage struct {
	data []byte
}

// NewEncodedImage wraps raw JPEG bytes into the canonical form.
func NewEncodedImage(jpegBytes []byte) EncodedImage {
	return EncodedImage{data: jpegBytes}
}

func (e EncodedImage) Bytes() []byte {
	return e.data
}

func (e EncodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(e.data)
}

func (e EncodedImage) DataURL() string {
	return dataURLPrefix + e.Base64()
}

func (e EncodedImage) IsZero() bool {
	return len(e.data) == 0
}

// Bounds decodes only the image header and returns (width, height).
func (e EncodedImage) Bounds() (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(e.data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ParseDataURL reverses DataURL: it strips the MIME prefix and decodes the
// base64 payload. Any base64 data: image URL is accepted, not just image/jpeg.
func ParseDataURL(s string) (EncodedImage, error) {
	if !strings.HasPrefix(s, "data:") {
		return EncodedImage{}, imageReadError(fmt.Errorf("not a data URL"))
	}
	idx := strings.Index(s, ";base64,")
	if idx < 0 {
		return EncodedImage{}, imageReadError(fmt.Errorf("data URL is not base64 encoded"))
	}
	raw, err := base64.StdEncoding.DecodeString(s[idx+len(";base64,"):])
	if err != nil {
		return EncodedImage{}, imageReadError(fmt.Errorf("failed to decode base64 payload: %w", err))
	}
	return EncodedImage{data: raw}, nil
}

// NormalizeImage converts arbitrary image bytes (jpeg, png, gif, webp) into
// the canonical form: the longer side fits maxDim (no upscaling — a source
// already within the bound keeps its dimensions), transparency is flattened
// onto an opaque white canvas, and the result is encoded as JPEG at the given
// quality. maxDim <= 0 skips resizing and only re-encodes.
//
// Decode and encode failures surface as image_read_failure.
func NormalizeImage(data []byte, maxDim, quality int) (EncodedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return EncodedImage{}, imageReadError(fmt.Errorf("failed to decode image: %w", err))
	}

	if maxDim > 0 {
		// Fit scales down only, preserving aspect ratio.
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	flat := imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return EncodedImage{}, imageReadError(fmt.Errorf("failed to encode image to jpeg: %w", err))
	}
	return EncodedImage{data: buf.Bytes()}, nil
}

// NormalizeEncoded re-normalizes an already-canonical image to a different
// bound, e.g. before transmission to the inference backend.
func NormalizeEncoded(img EncodedImage, maxDim, quality int) (EncodedImage, error) {
	return NormalizeImage(img.Bytes(), maxDim, quality)
}

func imageReadError(err error) *models.TryOnError {
	return &models.TryOnError{
		Kind:    models.ErrImageRead,
		Message: fmt.Sprintf("Could not read the image: %v", err),
	}
}
